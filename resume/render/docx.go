package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Paragraph styles defined in styles.xml.
const (
	styleNormal   = "Normal"
	styleHeading2 = "Heading2"
	styleBullet   = "ListBullet"
)

type run struct {
	text  string
	style RunStyle
}

type paragraph struct {
	style string
	runs  []run
}

// document accumulates paragraphs and serializes them as a minimal WordprocessingML package.
type document struct {
	title      string
	paragraphs []paragraph
}

func (d *document) add(style string, text string, rs RunStyle) {
	d.paragraphs = append(d.paragraphs, paragraph{style: style, runs: []run{{text: text, style: rs}}})
}

func (d *document) blank() {
	d.paragraphs = append(d.paragraphs, paragraph{style: styleNormal})
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"docProps/core.xml", d.coreXML()},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML()},
		{"word/numbering.xml", numberingXML},
		{"word/document.xml", d.documentXML()},
	}
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: fixedModTime})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

// fixedModTime keeps output byte-stable for identical input.
var fixedModTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (d *document) documentXML() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range d.paragraphs {
		b.WriteString(`<w:p><w:pPr><w:pStyle w:val="`)
		b.WriteString(p.style)
		b.WriteString(`"/></w:pPr>`)
		for _, r := range p.runs {
			writeRun(&b, r)
		}
		b.WriteString(`</w:p>`)
	}
	fmt.Fprintf(&b, `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr>`,
		MarginTopBottom, MarginLeftRight, MarginTopBottom, MarginLeftRight)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeRun(b *strings.Builder, r run) {
	b.WriteString(`<w:r>`)
	if rpr := runProperties(r.style); rpr != "" {
		b.WriteString(`<w:rPr>`)
		b.WriteString(rpr)
		b.WriteString(`</w:rPr>`)
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	b.WriteString(escape(r.text))
	b.WriteString(`</w:t></w:r>`)
}

func runProperties(s RunStyle) string {
	var b strings.Builder
	if s.Bold {
		b.WriteString(`<w:b/>`)
	}
	if s.Italic {
		b.WriteString(`<w:i/>`)
	}
	if s.Color != "" {
		fmt.Fprintf(&b, `<w:color w:val="%s"/>`, s.Color)
	}
	if s.Size > 0 {
		fmt.Fprintf(&b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, s.Size, s.Size)
	}
	return b.String()
}

func escape(s string) string {
	var b bytes.Buffer
	// xml.EscapeText only fails on writer errors; bytes.Buffer never returns one.
	_ = xml.EscapeText(&b, []byte(stripInvalidXMLChars(s)))
	return b.String()
}

// stripInvalidXMLChars drops control characters that WordprocessingML rejects.
func stripInvalidXMLChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		if r < 0x20 || r == 0xFFFE || r == 0xFFFF {
			return -1
		}
		return r
	}, s)
}

func (d *document) coreXML() string {
	return xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		`<dc:title>` + escape(d.title) + `</dc:title><dc:creator>resume-revamp</dc:creator></cp:coreProperties>`
}

func stylesXML() string {
	size := strconv.Itoa(BodySize)
	heading := StyleMap["sectionHeading"]
	return xml.Header + `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="` + FontName + `" w:hAnsi="` + FontName + `" w:eastAsia="` + FontName + `" w:cs="` + FontName + `"/>` +
		`<w:sz w:val="` + size + `"/><w:szCs w:val="` + size + `"/></w:rPr></w:rPrDefault>` +
		`<w:pPrDefault><w:pPr><w:spacing w:after="80"/></w:pPr></w:pPrDefault></w:docDefaults>` +
		`<w:style w:type="paragraph" w:default="1" w:styleId="` + styleNormal + `"><w:name w:val="Normal"/><w:qFormat/></w:style>` +
		`<w:style w:type="paragraph" w:styleId="` + styleHeading2 + `"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
		`<w:pPr><w:keepNext/><w:spacing w:before="120" w:after="60"/><w:outlineLvl w:val="1"/></w:pPr><w:rPr>` + runProperties(heading) + `</w:rPr></w:style>` +
		`<w:style w:type="paragraph" w:styleId="` + styleBullet + `"><w:name w:val="List Bullet"/><w:basedOn w:val="Normal"/>` +
		`<w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr><w:ind w:left="360" w:hanging="360"/></w:pPr></w:style>` +
		`</w:styles>`
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>` +
	`</Relationships>`

const numberingXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:abstractNum w:abstractNumId="0"><w:multiLevelType w:val="singleLevel"/>` +
	`<w:lvl w:ilvl="0"><w:start w:val="1"/><w:numFmt w:val="bullet"/><w:lvlText w:val="•"/><w:lvlJc w:val="left"/>` +
	`<w:pPr><w:ind w:left="360" w:hanging="360"/></w:pPr></w:lvl></w:abstractNum>` +
	`<w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>` +
	`</w:numbering>`

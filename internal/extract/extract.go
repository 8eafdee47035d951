package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"resume-revamp/internal/shared/storage/object"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
	mimeText = "text/plain"

	// ExtractedSuffix is appended to an upload's key for its plain-text copy.
	ExtractedSuffix = ".extracted.txt"
)

var (
	// ErrUnsupportedType is returned for uploads that are not PDF, DOCX or plain text.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyText is returned when a document yields no text.
	ErrEmptyText = errors.New("no text could be extracted")
)

type extractor func(data []byte) (string, error)

var extractors = map[string]extractor{
	mimePDF:  pdfText,
	mimeDOCX: docxText,
	mimeText: plainText,
}

// OOXML parts that identify what a zip container holds.
var ooxmlParts = []struct{ part, mime string }{
	{"word/document.xml", mimeDOCX},
	{"xl/workbook.xml", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	{"ppt/presentation.xml", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
}

// ExtractText reads a stored upload, extracts its text and stores the text
// next to it under key+ExtractedSuffix.
func ExtractText(ctx context.Context, store object.ObjectStore, key, mimeType, fileName string) (string, error) {
	wrap := func(err error) error {
		return fmt.Errorf("extract %s (%s): %w", key, mimeType, err)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", wrap(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", wrap(err)
	}

	text, err := ExtractTextFromBytes(ctx, data, mimeType, fileName)
	if err != nil {
		return "", wrap(err)
	}
	if _, err := store.SaveWithKey(ctx, key+ExtractedSuffix, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", wrap(err)
	}
	return text, nil
}

// ExtractTextFromBytes extracts trimmed text from an in-memory upload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := DetectType(mimeType, fileName, data)
	fn, ok := extractors[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
	text, err := fn(data)
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

// DetectType picks the effective MIME type. The file extension wins over the
// declared type, and sniffing is the last resort.
func DetectType(mimeType, fileName string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf":
		return mimePDF
	case ".txt", ".md":
		return mimeText
	case ".docx":
		return mimeDOCX
	case ".doc":
		// Renamed OOXML is common; true binary Word files are not supported.
		if ooxmlKind(data) == mimeDOCX {
			return mimeDOCX
		}
		return mimeDOC
	}

	declared, _, _ := strings.Cut(mimeType, ";")
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" || declared == "application/octet-stream" {
		declared, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	switch declared {
	case "text/plain", "text/markdown":
		return mimeText
	case "application/zip", mimeDOC:
		if kind := ooxmlKind(data); kind != "" {
			return kind
		}
	}
	return declared
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		defer doc.Close()
		return paragraphText(doc.Editable().GetContent()), nil
	}
	// The docx reader insists on parts some generators omit.
	raw, partErr := zipPart(data, "word/document.xml")
	if partErr != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return paragraphText(string(raw)), nil
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedType)
	}
	return string(data), nil
}

// paragraphText flattens WordprocessingML to text, one line per paragraph.
// Malformed XML is returned unchanged.
func paragraphText(raw string) string {
	dec := xml.NewDecoder(strings.NewReader(raw))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			out.Write(t)
		case xml.StartElement:
			if t.Name.Local == "tab" {
				out.WriteByte('\t')
			}
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && out.Len() > 0 {
				out.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(out.String())
}

func zipPart(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(zr, name)
}

// ooxmlKind reports the Office type of a zip container, or "" when data is
// not one.
func ooxmlKind(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, p := range ooxmlParts {
		if _, err := fs.Stat(zr, p.part); err == nil {
			return p.mime
		}
	}
	return ""
}

// Package packaging bundles a rewrite's documents into a single zip.
package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"resume-revamp/internal/ats"
	"resume-revamp/internal/packaging/pdf"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/resume/model"
	"resume-revamp/resume/render"
)

// Entry names inside the package zip.
const (
	ResumeDOCX      = "resume.docx"
	CoverLetterDOCX = "cover_letter.docx"
	ResumePDF       = "resume.pdf"
	CoverLetterPDF  = "cover_letter.pdf"
	AuditJSON       = "ats_audit.json"

	ContentType = "application/zip"
)

// maxEntrySize bounds a single unpacked entry.
const maxEntrySize = 20 << 20

// ErrRender wraps document rendering failures.
var ErrRender = errors.New("render documents")

// Input is everything a package is built from.
type Input struct {
	Resume      model.Resume
	CoverLetter string
	Audit       ats.Result
}

// Package is a built zip and the names of its entries, in order.
type Package struct {
	Zip        []byte
	Files      []string
	PDFSkipped bool
}

// File is one unpacked entry.
type File struct {
	Name string
	Data []byte
}

// Builder renders documents and optionally converts them to PDF.
type Builder struct {
	PDF pdf.Converter
}

// NewBuilder returns a builder; a nil converter disables PDF output.
func NewBuilder(conv pdf.Converter) *Builder {
	if conv == nil {
		conv = pdf.NoopConverter{}
	}
	return &Builder{PDF: conv}
}

// Build renders the résumé and cover letter, converts both to PDF when a
// converter is available, and zips them with the audit JSON. PDF failures
// are logged and leave the DOCX files in place.
func (b *Builder) Build(ctx context.Context, in Input) (*Package, error) {
	resumeDOCX, err := render.RenderResume(in.Resume)
	if err != nil {
		return nil, fmt.Errorf("%w: resume: %v", ErrRender, err)
	}
	coverDOCX, err := render.RenderCoverLetter(in.CoverLetter)
	if err != nil {
		return nil, fmt.Errorf("%w: cover letter: %v", ErrRender, err)
	}
	audit, err := json.MarshalIndent(in.Audit, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode audit: %w", err)
	}

	files := []File{
		{Name: ResumeDOCX, Data: resumeDOCX},
		{Name: CoverLetterDOCX, Data: coverDOCX},
	}
	skipped := false
	for _, f := range []struct{ src, dst string }{{ResumeDOCX, ResumePDF}, {CoverLetterDOCX, CoverLetterPDF}} {
		data := resumeDOCX
		if f.src == CoverLetterDOCX {
			data = coverDOCX
		}
		out, err := b.converter().Convert(ctx, f.src, data)
		if err != nil {
			skipped = true
			if !errors.Is(err, pdf.ErrSkipped) {
				telemetry.Warn("packaging.pdf_failed", map[string]any{"file": f.src, "error": err.Error()})
			}
			continue
		}
		files = append(files, File{Name: f.dst, Data: out})
	}
	files = append(files, File{Name: AuditJSON, Data: audit})

	zipped, err := Zip(files)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return &Package{Zip: zipped, Files: names, PDFSkipped: skipped}, nil
}

func (b *Builder) converter() pdf.Converter {
	if b == nil || b.PDF == nil {
		return pdf.NoopConverter{}
	}
	return b.PDF
}

// Zip writes files into a zip archive in the given order.
func Zip(files []File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, fmt.Errorf("zip create %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads every regular entry of a package zip.
func Unpack(data []byte) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	out := make([]File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if len(body) > maxEntrySize {
			return nil, fmt.Errorf("read %s: entry exceeds %d bytes", f.Name, maxEntrySize)
		}
		out = append(out, File{Name: path.Base(f.Name), Data: body})
	}
	return out, nil
}

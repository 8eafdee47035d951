// Package pdf converts DOCX documents to PDF.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrSkipped is returned by converters that do not produce PDFs.
var ErrSkipped = errors.New("pdf conversion skipped")

// Converter turns a DOCX payload into a PDF payload.
type Converter interface {
	Convert(ctx context.Context, name string, docx []byte) ([]byte, error)
}

// NoopConverter never converts; packages then ship DOCX only.
type NoopConverter struct{}

// Convert returns ErrSkipped.
func (NoopConverter) Convert(context.Context, string, []byte) ([]byte, error) {
	return nil, ErrSkipped
}

// SofficeConverter shells out to LibreOffice in headless mode.
type SofficeConverter struct {
	Binary  string
	Timeout time.Duration
}

// runCommand is a var so tests can stub the LibreOffice invocation.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Convert writes the DOCX to a temp dir, runs soffice --convert-to pdf and reads the result.
func (s SofficeConverter) Convert(ctx context.Context, name string, docx []byte) ([]byte, error) {
	bin := strings.TrimSpace(s.Binary)
	if bin == "" {
		bin = "soffice"
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "resume-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("pdf temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "document"
	}
	src := filepath.Join(dir, base+".docx")
	if err := os.WriteFile(src, docx, 0o600); err != nil {
		return nil, fmt.Errorf("pdf write source: %w", err)
	}

	// A private profile dir lets concurrent conversions run without sharing a lock.
	profile := "-env:UserInstallation=file://" + filepath.ToSlash(filepath.Join(dir, "profile"))
	out, err := runCommand(ctx, bin, profile, "--headless", "--convert-to", "pdf", "--outdir", dir, src)
	if err != nil {
		return nil, fmt.Errorf("soffice convert %s: %w: %s", base, err, strings.TrimSpace(string(out)))
	}

	pdf, err := os.ReadFile(filepath.Join(dir, base+".pdf"))
	if err != nil {
		return nil, fmt.Errorf("soffice output %s: %w", base, err)
	}
	return pdf, nil
}

// New selects a converter by name: "soffice" or "none".
func New(kind, binary string) Converter {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "soffice", "libreoffice":
		return SofficeConverter{Binary: binary}
	}
	return NoopConverter{}
}

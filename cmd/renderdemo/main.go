package main

// Render a sample package without calling an LLM:
//   go run ./cmd/renderdemo -out ./out/sample_package.zip

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resume-revamp/internal/ats"
	"resume-revamp/internal/packaging"
	"resume-revamp/internal/packaging/pdf"
	"resume-revamp/resume/model"
)

const sampleJob = "Senior backend engineer: Go, Postgres, Kubernetes, Terraform and on-call ownership of distributed systems."

func main() {
	outPath := flag.String("out", "./out/sample_package.zip", "output path for the package zip")
	converter := flag.String("pdf", "none", "pdf converter (none or soffice)")
	soffice := flag.String("soffice", "", "path to the soffice binary")
	flag.Parse()

	resume := sampleResume()
	audit := ats.AuditResume(resume, sampleJob)

	pkg, err := packaging.NewBuilder(pdf.New(*converter, *soffice)).Build(context.Background(), packaging.Input{
		Resume:      resume,
		CoverLetter: sampleCoverLetter,
		Audit:       audit,
	})
	if err != nil {
		exitErr(fmt.Sprintf("build package: %v", err))
	}

	if err := writeOutputs(*outPath, resume, pkg.Zip); err != nil {
		exitErr(fmt.Sprintf("write failed: %v", err))
	}
	if err := validatePackage(pkg.Zip); err != nil {
		exitErr(fmt.Sprintf("package validation failed: %v", err))
	}

	fmt.Printf("OK: wrote %s (%s) ats_score=%.2f pdf_skipped=%t\n", *outPath, strings.Join(pkg.Files, ", "), audit.Score, pkg.PDFSkipped)
}

func writeOutputs(outPath string, resume model.Resume, zipped []byte) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, zipped, 0o644); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(resume, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "sample_resume.json"), payload, 0o644)
}

// validatePackage checks the résumé entry is a readable DOCX without
// leftover template markers.
func validatePackage(zipped []byte) error {
	files, err := packaging.Unpack(zipped)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Name != packaging.ResumeDOCX {
			continue
		}
		text, err := documentXML(f.Data)
		if err != nil {
			return err
		}
		if strings.Contains(text, "{{") || strings.Contains(text, "}}") {
			return fmt.Errorf("unresolved template tokens in %s", f.Name)
		}
		return nil
	}
	return fmt.Errorf("%s not found in package", packaging.ResumeDOCX)
}

func documentXML(docx []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return "", err
	}
	for _, file := range reader.File {
		if strings.ReplaceAll(file.Name, "\\", "/") != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}
	return "", fmt.Errorf("document.xml not found in docx")
}

const sampleCoverLetter = `Dear Hiring Manager,

I am excited to apply for the Senior Backend Engineer role. Over eight years I have built Go services on Postgres and Kubernetes.

Sincerely,
Jordan Lee`

func sampleResume() model.Resume {
	return model.Resume{
		Header: model.ResumeHeader{
			Name:  "Jordan Lee",
			Email: "jordan.lee@example.com",
			Phone: "+1-555-0102",
		},
		Summary: "Backend engineer with 8+ years building resilient Go APIs and data services.",
		Experience: []model.ResumeExperience{
			{
				Title:   "Senior Backend Engineer",
				Company: "Acme Logistics",
				Dates:   "2021 - Present",
				Bullets: []string{
					"Designed a routing service that reduced shipment latency by 18%.",
					"Moved batch jobs onto Kubernetes and cut infrastructure spend by 22%.",
				},
			},
			{
				Title:   "Backend Engineer",
				Company: "Blue Harbor Systems",
				Dates:   "2018 - 2021",
				Bullets: []string{"Built event-driven ingestion pipelines on Postgres."},
			},
		},
		Education: []model.ResumeEducation{
			{Degree: "BSc Computer Science", Institution: "University of Texas", Dates: "2014 - 2018"},
		},
		Skills: []string{"Go", "Postgres", "Kubernetes", "Redis", "AWS"},
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

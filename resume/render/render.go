// Package render builds DOCX files for rewritten résumés and cover letters.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"resume-revamp/resume/model"
)

// ErrEmptyDocument is returned when there is nothing to render.
var ErrEmptyDocument = errors.New("nothing to render")

// RenderResume lays out a résumé: name, contact line, then Professional
// Summary, Experience, Education and Skills sections when present.
func RenderResume(r model.Resume) ([]byte, error) {
	if r.IsZero() {
		return nil, ErrEmptyDocument
	}
	doc := &document{title: strings.TrimSpace(r.Header.Name)}
	doc.paragraphs = resumeParagraphs(r)
	out, err := doc.bytes()
	if err != nil {
		return nil, fmt.Errorf("render resume: %w", err)
	}
	return out, nil
}

func resumeParagraphs(r model.Resume) []paragraph {
	doc := &document{}
	doc.add(styleNormal, strings.TrimSpace(r.Header.Name), StyleMap["name"])
	if contact := ContactLine(r.Header); contact != "" {
		doc.add(styleNormal, contact, RunStyle{})
	}

	if summary := strings.TrimSpace(r.Summary); summary != "" {
		doc.blank()
		doc.add(styleHeading2, "Professional Summary", RunStyle{})
		doc.add(styleNormal, summary, RunStyle{})
	}

	if len(r.Experience) > 0 {
		doc.blank()
		doc.add(styleHeading2, "Experience", RunStyle{})
		for _, exp := range r.Experience {
			doc.add(styleNormal, RoleLine(exp), StyleMap["roleLine"])
			for _, b := range exp.Bullets {
				if b = strings.TrimSpace(b); b != "" {
					doc.add(styleBullet, b, RunStyle{})
				}
			}
		}
	}

	if len(r.Education) > 0 {
		doc.blank()
		doc.add(styleHeading2, "Education", RunStyle{})
		for _, edu := range r.Education {
			doc.add(styleNormal, EducationLine(edu), RunStyle{})
		}
	}

	if len(r.Skills) > 0 {
		doc.blank()
		doc.add(styleHeading2, "Skills", RunStyle{})
		doc.add(styleNormal, strings.Join(r.Skills, ", "), RunStyle{})
	}
	return doc.paragraphs
}

// ContactLine renders "Email: x | Phone: y", omitting missing parts.
func ContactLine(h model.ResumeHeader) string {
	parts := make([]string, 0, 2)
	if email := strings.TrimSpace(h.Email); email != "" {
		parts = append(parts, "Email: "+email)
	}
	if phone := strings.TrimSpace(h.Phone); phone != "" {
		parts = append(parts, "Phone: "+phone)
	}
	return strings.Join(parts, " | ")
}

// RoleLine renders "title – company (dates)".
func RoleLine(exp model.ResumeExperience) string {
	return fmt.Sprintf("%s – %s (%s)", exp.Title, exp.Company, exp.Dates)
}

// EducationLine renders "degree, institution (dates)".
func EducationLine(edu model.ResumeEducation) string {
	return fmt.Sprintf("%s, %s (%s)", edu.Degree, edu.Institution, edu.Dates)
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// RenderCoverLetter writes one paragraph per blank-line separated block.
// Single line breaks inside a block are folded into spaces.
func RenderCoverLetter(text string) ([]byte, error) {
	blocks := CoverLetterParagraphs(text)
	if len(blocks) == 0 {
		return nil, ErrEmptyDocument
	}
	doc := &document{title: "Cover Letter"}
	for _, block := range blocks {
		doc.add(styleNormal, block, RunStyle{})
	}
	out, err := doc.bytes()
	if err != nil {
		return nil, fmt.Errorf("render cover letter: %w", err)
	}
	return out, nil
}

// CoverLetterParagraphs splits cover letter text into trimmed paragraphs.
func CoverLetterParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range blankLines.Split(text, -1) {
		block = strings.Join(strings.Fields(block), " ")
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

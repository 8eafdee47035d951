package ats

import (
	"errors"
	"fmt"
	"strings"

	"resume-revamp/resume/model"
)

// ErrInvalidInputShape is returned when a résumé record has fields of the wrong type.
var ErrInvalidInputShape = errors.New("invalid input shape")

// FlattenResume joins the auditable parts of a résumé with single spaces:
// summary, then title, company and bullets per role, then degree and
// institution per education entry, then each skill. Empty parts are skipped.
func FlattenResume(r model.Resume) string {
	parts := make([]string, 0, 1+3*len(r.Experience)+2*len(r.Education)+len(r.Skills))
	parts = appendPart(parts, r.Summary)
	for _, exp := range r.Experience {
		parts = appendPart(parts, exp.Title)
		parts = appendPart(parts, exp.Company)
		parts = appendPart(parts, joinNonEmpty(exp.Bullets))
	}
	for _, edu := range r.Education {
		parts = appendPart(parts, edu.Degree)
		parts = appendPart(parts, edu.Institution)
	}
	for _, skill := range r.Skills {
		parts = appendPart(parts, skill)
	}
	return strings.Join(parts, " ")
}

// AuditResume flattens the résumé and scores it against the job description.
func AuditResume(r model.Resume, jobText string) Result {
	return KeywordMatchScore(FlattenResume(r), jobText)
}

// DecodeRecord decodes a mapping-shaped résumé where every key is optional.
// Fields of the wrong JSON type fail with ErrInvalidInputShape; nothing is coerced.
func DecodeRecord(raw []byte) (model.Resume, error) {
	r, err := model.DecodeLenient(raw)
	if err != nil {
		return model.Resume{}, fmt.Errorf("%w: %v", ErrInvalidInputShape, err)
	}
	return r, nil
}

// AuditRecord decodes a raw record and audits it in one step.
func AuditRecord(raw []byte, jobText string) (Result, error) {
	r, err := DecodeRecord(raw)
	if err != nil {
		return Result{}, err
	}
	return AuditResume(r, jobText), nil
}

func appendPart(parts []string, s string) []string {
	if s == "" {
		return parts
	}
	return append(parts, s)
}

func joinNonEmpty(items []string) string {
	var b strings.Builder
	for _, it := range items {
		if it == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(it)
	}
	return b.String()
}

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidShape reports a field whose JSON type does not match the schema.
	ErrInvalidShape = errors.New("invalid resume shape")
	// ErrSchema reports a payload missing required schema fields.
	ErrSchema = errors.New("resume schema validation failed")
)

// Resume is the structured résumé produced by the rewrite step.
type Resume struct {
	Header     ResumeHeader       `json:"header"`
	Summary    string             `json:"summary"`
	Experience []ResumeExperience `json:"experience"`
	Education  []ResumeEducation  `json:"education"`
	Skills     []string           `json:"skills"`
}

// ResumeHeader captures contact details.
type ResumeHeader struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ResumeExperience represents a work history entry.
type ResumeExperience struct {
	Title   string   `json:"title"`
	Company string   `json:"company"`
	Dates   string   `json:"dates"`
	Bullets []string `json:"bullets"`
}

// ResumeEducation represents an education entry.
type ResumeEducation struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Dates       string `json:"dates"`
}

// IsZero reports whether the résumé carries no content at all.
func (r Resume) IsZero() bool {
	return r.Header == (ResumeHeader{}) &&
		strings.TrimSpace(r.Summary) == "" &&
		len(r.Experience) == 0 &&
		len(r.Education) == 0 &&
		len(r.Skills) == 0
}

// DecodeLenient decodes a résumé where every key is optional. Type mismatches
// fail with ErrInvalidShape rather than being coerced.
func DecodeLenient(raw []byte) (Resume, error) {
	var out Resume
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, fmt.Errorf("%w: empty payload", ErrInvalidShape)
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return Resume{}, shapeError(err)
	}
	return out, nil
}

// DecodeStrict decodes a résumé and requires every schema key to be present
// and non-null. Unknown keys are ignored.
func DecodeStrict(raw []byte) (Resume, error) {
	trimmed := bytes.TrimSpace(raw)
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := requireKeys(top, "", "header", "summary", "experience", "education", "skills"); err != nil {
		return Resume{}, err
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(top["header"], &header); err != nil {
		return Resume{}, fmt.Errorf("%w: header: %v", ErrSchema, err)
	}
	if err := requireKeys(header, "header.", "name", "email", "phone"); err != nil {
		return Resume{}, err
	}

	var experience []map[string]json.RawMessage
	if err := json.Unmarshal(top["experience"], &experience); err != nil {
		return Resume{}, fmt.Errorf("%w: experience: %v", ErrSchema, err)
	}
	for i, entry := range experience {
		if err := requireKeys(entry, fmt.Sprintf("experience[%d].", i), "title", "company", "dates", "bullets"); err != nil {
			return Resume{}, err
		}
	}

	var education []map[string]json.RawMessage
	if err := json.Unmarshal(top["education"], &education); err != nil {
		return Resume{}, fmt.Errorf("%w: education: %v", ErrSchema, err)
	}
	for i, entry := range education {
		if err := requireKeys(entry, fmt.Sprintf("education[%d].", i), "degree", "institution", "dates"); err != nil {
			return Resume{}, err
		}
	}

	var out Resume
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrSchema, shapeError(err))
	}
	return out, nil
}

func requireKeys(obj map[string]json.RawMessage, prefix string, keys ...string) error {
	if obj == nil {
		return fmt.Errorf("%w: %sobject required", ErrSchema, prefix)
	}
	for _, key := range keys {
		val, ok := obj[key]
		if !ok {
			return fmt.Errorf("%w: %s%s is required", ErrSchema, prefix, key)
		}
		if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
			return fmt.Errorf("%w: %s%s must not be null", ErrSchema, prefix, key)
		}
	}
	return nil
}

func shapeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "record"
		}
		return fmt.Errorf("%w: %s must be %s, got %s", ErrInvalidShape, field, typeErr.Type.String(), typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("%w: malformed json at offset %d", ErrInvalidShape, syntaxErr.Offset)
	}
	return fmt.Errorf("%w: %v", ErrInvalidShape, err)
}

package rewrites

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown rewrites and for rewrites owned by someone else.
	ErrNotFound = errors.New("rewrite not found")
	// ErrInvalidInput covers missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidLLMOutput means the model never produced a usable résumé, so nothing can be rendered.
	ErrInvalidLLMOutput = errors.New("invalid llm output")
	// ErrNoPackage is returned when a rewrite has no stored zip.
	ErrNoPackage = errors.New("rewrite has no package")
	// ErrDeliveryUnavailable means no mailer or queue is configured.
	ErrDeliveryUnavailable = errors.New("email delivery not configured")
)

// StepError ties a pipeline failure to its category and the record that tracks it.
type StepError struct {
	Category  string
	RewriteID string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CategoryOf returns the failure category of err, or "" when it has none.
func CategoryOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

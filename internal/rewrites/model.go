package rewrites

import (
	"encoding/json"
	"time"

	"resume-revamp/internal/ats"
)

// Rewrite statuses.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusEmailed     = "emailed"
	StatusEmailFailed = "email_failed"
)

// Failure categories recorded on failed rewrites.
const (
	CategoryLLM     = "llm_error"
	CategoryExtract = "extract_error"
	CategoryRender  = "render_error"
	CategoryStorage = "storage_error"
)

// Rewrite is one résumé rewrite and its outputs.
type Rewrite struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	RequestID       string `json:"request_id,omitempty"`
	Status          string `json:"status"`
	FailureCategory string `json:"failure_category,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	PromptVersion   string `json:"prompt_version"`
	Tone            string `json:"tone"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	FileName        string `json:"file_name"`
	SourceKey       string `json:"-"`
	JobDescription  string `json:"job_description"`
	// Resume is the decoded résumé, or {"raw": "..."} when the model output was unusable.
	Resume      json.RawMessage `json:"resume,omitempty"`
	ValidOutput bool            `json:"valid_output"`
	CoverLetter string          `json:"cover_letter,omitempty"`
	Audit       *ats.Result     `json:"ats_audit,omitempty"`
	PackageKey  string          `json:"-"`
	EmailTo     string          `json:"email_to,omitempty"`
	CacheHit    bool            `json:"cache_hit"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasPackage reports whether a zip was stored for this rewrite.
func (r Rewrite) HasPackage() bool { return r.PackageKey != "" }

// PackageKeyFor is the object-store key of a rewrite's package.
func PackageKeyFor(id string) string {
	return "rewrites/" + id + "/package.zip"
}

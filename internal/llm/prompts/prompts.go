// Package prompts renders the résumé, cover letter and repair prompts.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Version selects a résumé prompt revision.
type Version string

const (
	V1    Version = "v1"
	V2_1  Version = "v2_1"
	V3RAG Version = "v3_rag"

	DefaultVersion = V2_1
)

// Tones accepted by the rewrite prompts.
const (
	ToneFormal    = "formal"
	ToneModern    = "modern"
	ToneConfident = "confident"
	ToneImpactful = "impactful"

	DefaultTone = ToneConfident
)

var (
	// ErrUnknownVersion is returned for prompt versions that are not registered.
	ErrUnknownVersion = errors.New("unknown prompt version")
	// ErrInvalidTone is returned for tones outside the accepted set.
	ErrInvalidTone = errors.New("invalid tone")
)

var resumeFiles = map[Version]string{
	V1:    "resume_v1.tmpl",
	V2_1:  "resume_v2_1.tmpl",
	V3RAG: "resume_v3_rag.tmpl",
}

var (
	resumeTemplates = map[Version]*template.Template{}
	coverTemplate   = mustParse("cover_letter.tmpl")
	fixTemplate     = mustParse("fix_json.tmpl")
)

func init() {
	for v, file := range resumeFiles {
		resumeTemplates[v] = mustParse(file)
	}
}

func mustParse(file string) *template.Template {
	return template.Must(template.New(file).ParseFS(templateFS, "templates/schema.tmpl", "templates/"+file))
}

// ParseVersion resolves a version string; empty selects DefaultVersion.
func ParseVersion(raw string) (Version, error) {
	v := Version(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return DefaultVersion, nil
	}
	if _, ok := resumeFiles[v]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, raw)
	}
	return v, nil
}

// Strict reports whether the version's output must pass the full schema check.
func (v Version) Strict() bool { return v != V1 }

// UsesRetrieval reports whether the version includes example bullets.
func (v Version) UsesRetrieval() bool { return v == V3RAG }

// ParseTone validates a tone; empty selects DefaultTone.
func ParseTone(raw string) (string, error) {
	tone := strings.ToLower(strings.TrimSpace(raw))
	switch tone {
	case "":
		return DefaultTone, nil
	case ToneFormal, ToneModern, ToneConfident, ToneImpactful:
		return tone, nil
	}
	return "", fmt.Errorf("%w: %q (want formal, modern, confident or impactful)", ErrInvalidTone, raw)
}

// Prompt is a rendered system and user message pair.
type Prompt struct {
	System string
	User   string
}

// String joins both messages, for logging and prompt inspection.
func (p Prompt) String() string {
	return "SYSTEM:\n" + p.System + "\n\nUSER:\n" + p.User
}

// ResumeInput feeds the résumé rewrite prompt.
type ResumeInput struct {
	ResumeText     string
	JobDescription string
	Tone           string
	// Examples are retrieved bullets, used by V3RAG only.
	Examples []string
}

// CoverLetterInput feeds the cover letter prompt.
type CoverLetterInput struct {
	ResumeText     string
	JobDescription string
	Tone           string
	CompanyName    string
	RecipientName  string
	SenderName     string
	SenderEmail    string
	SenderPhone    string
}

// Resume renders the rewrite prompt for a version.
func Resume(v Version, in ResumeInput) (Prompt, error) {
	tmpl, ok := resumeTemplates[v]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
	}
	tone, err := ParseTone(in.Tone)
	if err != nil {
		return Prompt{}, err
	}
	in.Tone = tone
	if !v.UsesRetrieval() {
		in.Examples = nil
	}
	return render(tmpl, in)
}

// CoverLetter renders the cover letter prompt. Recipient and company fall back
// to "Hiring Manager" and "your organisation".
func CoverLetter(in CoverLetterInput) (Prompt, error) {
	tone, err := ParseTone(in.Tone)
	if err != nil {
		return Prompt{}, err
	}
	in.Tone = tone
	if strings.TrimSpace(in.RecipientName) == "" {
		in.RecipientName = "Hiring Manager"
	}
	if strings.TrimSpace(in.CompanyName) == "" {
		in.CompanyName = "your organisation"
	}
	return render(coverTemplate, in)
}

// FixJSON renders the repair prompt for malformed model output.
func FixJSON(raw string) (Prompt, error) {
	return render(fixTemplate, struct{ Raw string }{Raw: raw})
}

func render(tmpl *template.Template, data any) (Prompt, error) {
	var sys, user bytes.Buffer
	if err := tmpl.ExecuteTemplate(&sys, "system", data); err != nil {
		return Prompt{}, fmt.Errorf("render %s system: %w", tmpl.Name(), err)
	}
	if err := tmpl.ExecuteTemplate(&user, "user", data); err != nil {
		return Prompt{}, fmt.Errorf("render %s user: %w", tmpl.Name(), err)
	}
	return Prompt{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(user.String()),
	}, nil
}

package rewrites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-revamp/internal/ats"
	"resume-revamp/internal/cache"
	"resume-revamp/internal/extract"
	"resume-revamp/internal/llm"
	"resume-revamp/internal/llm/prompts"
	"resume-revamp/internal/packaging"
	"resume-revamp/internal/retrieval"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/storage/object"
	"resume-revamp/internal/shared/telemetry"
	"resume-revamp/internal/usage"
	"resume-revamp/resume/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
	defaultTopK      = 5
)

// DeliveryJob asks for a stored package to be emailed.
type DeliveryJob struct {
	RewriteID string
	EmailTo   string
	RequestID string
}

// Dispatcher hands a delivery job to a mailer, inline or through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, job DeliveryJob) error
}

// Input is one rewrite request.
type Input struct {
	UserID    string
	RequestID string

	FileName    string
	ContentType string
	File        []byte

	JobDescription string
	Tone           string
	PromptVersion  string

	CompanyName   string
	RecipientName string
	SenderName    string
	SenderEmail   string
	SenderPhone   string

	EmailTo string
	// Package builds and stores the zip. An EmailTo implies it.
	Package bool
}

// Output is the result of a rewrite. Package is nil for previews.
type Output struct {
	Rewrite Rewrite
	Resume  model.Resume
	Package *packaging.Package
}

// Service runs the rewrite pipeline: quota, extraction, generation, audit,
// persistence, packaging and delivery.
type Service struct {
	Repo      Repo
	Usage     *usage.Service
	Store     object.ObjectStore
	LLM       llm.Client
	Retriever retrieval.Retriever
	Cache     cache.Cache
	CacheTTL  time.Duration
	Packager  *packaging.Builder
	Delivery  Dispatcher

	Provider       string
	Model          string
	DefaultVersion prompts.Version
	TopK           int
}

// Rewrite executes the full pipeline for one request.
func (s *Service) Rewrite(ctx context.Context, in Input) (Output, error) {
	start := time.Now()
	version, tone, err := s.validate(in)
	if err != nil {
		return Output{}, err
	}
	if s.Usage != nil {
		if _, err := s.Usage.Check(ctx, in.UserID); err != nil {
			return Output{}, err
		}
	}
	metrics.IncRewriteStarted()

	now := time.Now().UTC()
	rw := Rewrite{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		RequestID:      in.RequestID,
		PromptVersion:  string(version),
		Tone:           tone,
		Provider:       s.Provider,
		Model:          s.Model,
		FileName:       in.FileName,
		JobDescription: in.JobDescription,
		EmailTo:        strings.TrimSpace(in.EmailTo),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	log := map[string]any{
		"request_id":     in.RequestID,
		"rewrite_id":     rw.ID,
		"user_id":        in.UserID,
		"prompt_version": rw.PromptVersion,
	}

	text, sourceKey, err := s.extractText(ctx, in)
	if err != nil {
		category := CategoryExtract
		if errors.Is(err, errStoreUpload) {
			category = CategoryStorage
		}
		return Output{}, s.fail(ctx, rw, category, err)
	}
	rw.SourceKey = sourceKey

	key := s.cacheKey(text, in, tone, version)
	gen, hit := s.lookup(ctx, key)
	if !hit {
		gen, err = s.generate(ctx, text, in, tone, version)
		if err != nil {
			return Output{}, s.fail(ctx, rw, CategoryLLM, err)
		}
		if gen.Valid {
			s.remember(ctx, key, gen)
		}
	}
	rw.Resume = gen.Resume
	rw.ValidOutput = gen.Valid
	rw.CoverLetter = gen.CoverLetter
	rw.CacheHit = hit

	// Unusable output audits as an empty record, so the score is zero.
	audit := ats.AuditResume(gen.resume, in.JobDescription)
	metrics.ObserveATSScore(audit.Score)
	rw.Audit = &audit
	rw.Status = StatusCompleted

	if err := s.Repo.Create(ctx, rw); err != nil {
		metrics.IncRewriteFailed(CategoryStorage)
		return Output{}, &StepError{Category: CategoryStorage, RewriteID: rw.ID, Err: fmt.Errorf("persist rewrite: %w", err)}
	}
	if s.Usage != nil {
		if _, err := s.Usage.Consume(ctx, in.UserID, 1); err != nil {
			// Check passed earlier; a concurrent request may have taken the last slot.
			telemetry.Warn("usage.consume_failed", withField(log, "error", err.Error()))
		}
	}

	out := Output{Rewrite: rw, Resume: gen.resume}
	if in.Package || rw.EmailTo != "" {
		if !gen.Valid {
			telemetry.Warn("rewrite.package_refused", log)
			return out, fmt.Errorf("%w: rewrite %s", ErrInvalidLLMOutput, rw.ID)
		}
		pkg, err := s.packageAndStore(ctx, &out.Rewrite)
		if err != nil {
			return out, err
		}
		out.Package = pkg
		if rw.EmailTo != "" {
			s.dispatch(ctx, DeliveryJob{RewriteID: rw.ID, EmailTo: rw.EmailTo, RequestID: in.RequestID})
			if fresh, err := s.Repo.GetByID(ctx, rw.ID); err == nil {
				out.Rewrite = fresh
			}
		}
	}

	elapsed := time.Since(start)
	metrics.IncRewriteCompleted()
	metrics.ObserveRewriteDuration(elapsed)
	telemetry.Info("rewrite.completed", withFields(log, map[string]any{
		"cache_hit":    hit,
		"valid_output": gen.Valid,
		"ats_score":    audit.Score,
		"packaged":     out.Package != nil,
		"duration_ms":  elapsed.Milliseconds(),
	}))
	return out, nil
}

func (s *Service) validate(in Input) (prompts.Version, string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", "", fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if len(in.File) == 0 {
		return "", "", fmt.Errorf("%w: resume file is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return "", "", fmt.Errorf("%w: job description is required", ErrInvalidInput)
	}
	version, err := s.resolveVersion(in.PromptVersion)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	tone, err := prompts.ParseTone(in.Tone)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return version, tone, nil
}

func (s *Service) resolveVersion(raw string) (prompts.Version, error) {
	if strings.TrimSpace(raw) == "" && s.DefaultVersion != "" {
		return s.DefaultVersion, nil
	}
	return prompts.ParseVersion(raw)
}

var errStoreUpload = errors.New("store upload")

// extractText keeps the upload and its extracted text in the object store
// when one is configured.
func (s *Service) extractText(ctx context.Context, in Input) (string, string, error) {
	if s.Store == nil {
		text, err := extract.ExtractTextFromBytes(ctx, in.File, in.ContentType, in.FileName)
		return text, "", err
	}
	key, _, _, err := s.Store.Save(ctx, in.UserID, in.FileName, bytes.NewReader(in.File))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errStoreUpload, err)
	}
	text, err := extract.ExtractText(ctx, s.Store, key, in.ContentType, in.FileName)
	if err != nil {
		return "", key, err
	}
	return text, key, nil
}

func (s *Service) packageAndStore(ctx context.Context, rw *Rewrite) (*packaging.Package, error) {
	builder := s.Packager
	if builder == nil {
		builder = packaging.NewBuilder(nil)
	}
	var resume model.Resume
	if r, err := model.DecodeLenient(rw.Resume); err == nil {
		resume = r
	}
	pkg, err := builder.Build(ctx, packaging.Input{
		Resume:      resume,
		CoverLetter: rw.CoverLetter,
		Audit:       *rw.Audit,
	})
	if err != nil {
		return nil, s.markFailed(ctx, rw, CategoryRender, err)
	}
	if s.Store == nil {
		return pkg, nil
	}
	key := PackageKeyFor(rw.ID)
	if _, err := s.Store.SaveWithKey(ctx, key, packaging.ContentType, bytes.NewReader(pkg.Zip)); err != nil {
		return nil, s.markFailed(ctx, rw, CategoryStorage, fmt.Errorf("store package: %w", err))
	}
	if err := s.Repo.SetPackage(ctx, rw.ID, key, rw.EmailTo); err != nil {
		return nil, s.markFailed(ctx, rw, CategoryStorage, fmt.Errorf("record package: %w", err))
	}
	rw.PackageKey = key
	return pkg, nil
}

func (s *Service) dispatch(ctx context.Context, job DeliveryJob) {
	fields := map[string]any{"request_id": job.RequestID, "rewrite_id": job.RewriteID}
	if s.Delivery == nil {
		telemetry.Warn("rewrite.delivery_unavailable", fields)
		return
	}
	if err := s.Delivery.Dispatch(ctx, job); err != nil {
		// The package is already returned to the caller; delivery can be retried via the email endpoint.
		telemetry.Error("rewrite.dispatch_failed", withField(fields, "error", llm.SanitizeError(err)))
	}
}

// fail records a failed rewrite that never reached persistence.
func (s *Service) fail(ctx context.Context, rw Rewrite, category string, err error) error {
	rw.Status = StatusFailed
	rw.FailureCategory = category
	rw.ErrorMessage = llm.SanitizeError(err)
	if createErr := s.Repo.Create(ctx, rw); createErr != nil {
		telemetry.Error("rewrite.persist_failure_failed", map[string]any{"rewrite_id": rw.ID, "error": createErr.Error()})
	}
	return s.failed(rw, category, err)
}

// markFailed moves a persisted rewrite to failed.
func (s *Service) markFailed(ctx context.Context, rw *Rewrite, category string, err error) error {
	rw.Status = StatusFailed
	rw.FailureCategory = category
	rw.ErrorMessage = llm.SanitizeError(err)
	if upErr := s.Repo.UpdateStatus(ctx, rw.ID, StatusUpdate{Status: StatusFailed, FailureCategory: category, ErrorMessage: rw.ErrorMessage}); upErr != nil {
		telemetry.Error("rewrite.status_update_failed", map[string]any{"rewrite_id": rw.ID, "error": upErr.Error()})
	}
	return s.failed(*rw, category, err)
}

func (s *Service) failed(rw Rewrite, category string, err error) error {
	metrics.IncRewriteFailed(category)
	telemetry.Error("rewrite.failed", map[string]any{
		"request_id":       rw.RequestID,
		"rewrite_id":       rw.ID,
		"user_id":          rw.UserID,
		"failure_category": category,
		"error":            rw.ErrorMessage,
	})
	return &StepError{Category: category, RewriteID: rw.ID, Err: err}
}

// Get returns a rewrite owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (Rewrite, error) {
	if strings.TrimSpace(id) == "" {
		return Rewrite{}, ErrNotFound
	}
	rw, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Rewrite{}, err
	}
	if rw.UserID != userID {
		return Rewrite{}, ErrNotFound
	}
	return rw, nil
}

// List returns the caller's rewrites newest first. limit is clamped to 1..50.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Rewrite, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	return s.Repo.ListByUser(ctx, userID, ClampLimit(limit), offset)
}

// ClampLimit applies the history page size bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// OpenPackage streams the stored zip of a rewrite owned by userID.
func (s *Service) OpenPackage(ctx context.Context, userID, id string) (io.ReadCloser, Rewrite, error) {
	rw, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, Rewrite{}, err
	}
	if !rw.HasPackage() || s.Store == nil {
		return nil, rw, ErrNoPackage
	}
	rc, err := s.Store.Open(ctx, rw.PackageKey)
	if errors.Is(err, object.ErrNotFound) {
		return nil, rw, ErrNoPackage
	}
	if err != nil {
		return nil, rw, err
	}
	return rc, rw, nil
}

// Resend dispatches an existing package, to emailTo or the address used before.
func (s *Service) Resend(ctx context.Context, userID, id, emailTo, requestID string) (Rewrite, error) {
	rw, err := s.Get(ctx, userID, id)
	if err != nil {
		return Rewrite{}, err
	}
	if !rw.HasPackage() {
		return rw, ErrNoPackage
	}
	if s.Delivery == nil {
		return rw, ErrDeliveryUnavailable
	}
	emailTo = strings.TrimSpace(emailTo)
	if emailTo == "" {
		emailTo = rw.EmailTo
	}
	if emailTo == "" {
		return rw, fmt.Errorf("%w: email_to is required", ErrInvalidInput)
	}
	if err := s.Repo.SetPackage(ctx, rw.ID, rw.PackageKey, emailTo); err != nil {
		return rw, err
	}
	if err := s.Delivery.Dispatch(ctx, DeliveryJob{RewriteID: rw.ID, EmailTo: emailTo, RequestID: requestID}); err != nil {
		return rw, err
	}
	return s.Repo.GetByID(ctx, rw.ID)
}

func (s *Service) topK() int {
	if s.TopK > 0 {
		return s.TopK
	}
	return defaultTopK
}

func withField(fields map[string]any, k string, v any) map[string]any {
	return withFields(fields, map[string]any{k: v})
}

func withFields(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"

	"resume-revamp/internal/llm"
	"resume-revamp/internal/packaging"
	"resume-revamp/internal/rewrites"
	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/storage/object"
	"resume-revamp/internal/shared/telemetry"
)

const (
	subject = "Your revamped résumé and cover letter"
	body    = "Hi,\n\nAttached are your tailored résumé, cover letter and ATS keyword audit.\n\nGood luck with the application!\n"
)

// Deliverer emails stored rewrite packages and records the outcome.
type Deliverer struct {
	Repo   rewrites.Repo
	Store  object.ObjectStore
	Sender Sender
}

// Deliver sends the package of job.RewriteID to job.EmailTo, falling back to
// the address on the record. The status becomes emailed or email_failed.
func (d *Deliverer) Deliver(ctx context.Context, job rewrites.DeliveryJob) error {
	fields := map[string]any{"rewrite_id": job.RewriteID, "request_id": job.RequestID}
	rw, err := d.Repo.GetByID(ctx, job.RewriteID)
	if err != nil {
		return fmt.Errorf("load rewrite %s: %w", job.RewriteID, err)
	}
	to := job.EmailTo
	if to == "" {
		to = rw.EmailTo
	}
	if to == "" {
		return fmt.Errorf("%w: rewrite %s has no recipient", rewrites.ErrInvalidInput, rw.ID)
	}
	if !rw.HasPackage() {
		return rewrites.ErrNoPackage
	}

	files, err := d.attachments(ctx, rw.PackageKey)
	if err != nil {
		return d.failed(ctx, rw.ID, fields, err)
	}
	if err := d.Sender.Send(ctx, Email{To: to, Subject: subject, Body: body, Attachments: files}); err != nil {
		return d.failed(ctx, rw.ID, fields, err)
	}

	metrics.IncEmail("sent")
	if err := d.Repo.UpdateStatus(ctx, rw.ID, rewrites.StatusUpdate{Status: rewrites.StatusEmailed}); err != nil {
		telemetry.Error("delivery.status_update_failed", withError(fields, err))
	}
	telemetry.Info("delivery.sent", withField(fields, "attachments", len(files)))
	return nil
}

func (d *Deliverer) attachments(ctx context.Context, key string) ([]packaging.File, error) {
	rc, err := d.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, rewrites.ErrNoPackage
		}
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read package: %w", err)
	}
	return packaging.Unpack(data)
}

func (d *Deliverer) failed(ctx context.Context, id string, fields map[string]any, err error) error {
	metrics.IncEmail("failed")
	msg := llm.SanitizeError(err)
	if upErr := d.Repo.UpdateStatus(ctx, id, rewrites.StatusUpdate{Status: rewrites.StatusEmailFailed, ErrorMessage: msg}); upErr != nil {
		telemetry.Error("delivery.status_update_failed", withError(fields, upErr))
	}
	telemetry.Error("delivery.failed", withField(fields, "error", msg))
	return err
}

func withError(fields map[string]any, err error) map[string]any {
	return withField(fields, "error", err.Error())
}

func withField(fields map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, val := range fields {
		out[key] = val
	}
	out[k] = v
	return out
}

package rewrites

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"resume-revamp/internal/ats"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const rewriteColumns = `id, user_id, request_id, status, failure_category, error_message,
       prompt_version, tone, provider, model, file_name, source_key, job_description,
       resume, valid_output, cover_letter, ats_audit, package_key, email_to, cache_hit,
       created_at, updated_at`

// Create inserts a new rewrite.
func (r *PGRepo) Create(ctx context.Context, rw Rewrite) error {
	const query = `
INSERT INTO rewrites (
	id, user_id, request_id, status, failure_category, error_message,
	prompt_version, tone, provider, model, file_name, source_key, job_description,
	resume, valid_output, cover_letter, ats_audit, package_key, email_to, cache_hit,
	created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)`
	audit, err := marshalJSONB(rw.Audit)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		rw.ID,
		rw.UserID,
		rw.RequestID,
		rw.Status,
		rw.FailureCategory,
		rw.ErrorMessage,
		rw.PromptVersion,
		rw.Tone,
		rw.Provider,
		rw.Model,
		rw.FileName,
		rw.SourceKey,
		rw.JobDescription,
		rawJSONB(rw.Resume),
		rw.ValidOutput,
		rw.CoverLetter,
		audit,
		rw.PackageKey,
		rw.EmailTo,
		rw.CacheHit,
		rw.CreatedAt,
	)
	return err
}

// GetByID returns a rewrite by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Rewrite, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+rewriteColumns+` FROM rewrites WHERE id = $1`, id)
	rw, err := scanRewrite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Rewrite{}, ErrNotFound
	}
	return rw, err
}

// ListByUser returns a user's rewrites newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Rewrite, error) {
	if offset < 0 {
		offset = 0
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+rewriteColumns+`
FROM rewrites
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, userID, limitArg, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Rewrite{}
	for rows.Next() {
		rw, err := scanRewrite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// UpdateStatus applies a status transition.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	return r.exec(ctx, `
UPDATE rewrites
SET status = $2, error_message = $3, failure_category = COALESCE(NULLIF($4, ''), failure_category), updated_at = $5
WHERE id = $1`,
		id, upd.Status, upd.ErrorMessage, upd.FailureCategory, time.Now().UTC())
}

// SetPackage records the stored zip and, when given, the delivery address.
func (r *PGRepo) SetPackage(ctx context.Context, id, packageKey, emailTo string) error {
	return r.exec(ctx, `
UPDATE rewrites SET package_key = $2, email_to = COALESCE(NULLIF($3, ''), email_to), updated_at = $4 WHERE id = $1`,
		id, packageKey, emailTo, time.Now().UTC())
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRewrite(row rowScanner) (Rewrite, error) {
	var (
		rw     Rewrite
		resume sql.NullString
		audit  sql.NullString
	)
	err := row.Scan(
		&rw.ID,
		&rw.UserID,
		&rw.RequestID,
		&rw.Status,
		&rw.FailureCategory,
		&rw.ErrorMessage,
		&rw.PromptVersion,
		&rw.Tone,
		&rw.Provider,
		&rw.Model,
		&rw.FileName,
		&rw.SourceKey,
		&rw.JobDescription,
		&resume,
		&rw.ValidOutput,
		&rw.CoverLetter,
		&audit,
		&rw.PackageKey,
		&rw.EmailTo,
		&rw.CacheHit,
		&rw.CreatedAt,
		&rw.UpdatedAt,
	)
	if err != nil {
		return Rewrite{}, err
	}
	if resume.Valid && resume.String != "" {
		rw.Resume = json.RawMessage(resume.String)
	}
	if audit.Valid && audit.String != "" {
		var res ats.Result
		if err := json.Unmarshal([]byte(audit.String), &res); err == nil {
			rw.Audit = &res
		}
	}
	return rw, nil
}

func marshalJSONB(v *ats.Result) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func rawJSONB(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ Repo = (*PGRepo)(nil)

package rewrites

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"resume-revamp/internal/ats"
)

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, Rewrite{ID: id, UserID: "user-1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.Create(ctx, Rewrite{ID: "x", UserID: "user-2", CreatedAt: base}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	items, err := repo.ListByUser(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 2 || items[0].ID != "c" || items[1].ID != "b" {
		t.Fatalf("unexpected page: %+v", items)
	}
	items, _ = repo.ListByUser(ctx, "user-1", 2, 2)
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("unexpected second page: %+v", items)
	}
	items, _ = repo.ListByUser(ctx, "user-1", 2, 10)
	if len(items) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(items))
	}
}

func TestMemoryRepoUpdates(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, Rewrite{ID: "rw-1", UserID: "u", Status: StatusCompleted, EmailTo: "a@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SetPackage(ctx, "rw-1", "rewrites/rw-1/package.zip", ""); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "rw-1", StatusUpdate{Status: StatusEmailFailed, ErrorMessage: "smtp 550"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	rw, err := repo.GetByID(ctx, "rw-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !rw.HasPackage() || rw.EmailTo != "a@example.com" {
		t.Fatalf("empty email must keep the previous address: %+v", rw)
	}
	if rw.Status != StatusEmailFailed || rw.ErrorMessage != "smtp 550" {
		t.Fatalf("unexpected status: %+v", rw)
	}

	if err := repo.UpdateStatus(ctx, "missing", StatusUpdate{Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()
	rw := Rewrite{
		ID:             "rw-1",
		UserID:         "guest:abc",
		RequestID:      "req-1",
		Status:         StatusCompleted,
		PromptVersion:  "v2_1",
		Tone:           "modern",
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		FileName:       "resume.pdf",
		SourceKey:      "users/x/resume.pdf",
		JobDescription: "jd",
		Resume:         json.RawMessage(`{"summary":"s"}`),
		ValidOutput:    true,
		CoverLetter:    "Dear team",
		Audit:          &ats.Result{Score: 50, MatchedKeywords: []string{"go"}, MissingKeywords: []string{"sql"}},
		CreatedAt:      now,
	}

	mock.ExpectExec("INSERT INTO rewrites").
		WithArgs(
			rw.ID,
			rw.UserID,
			rw.RequestID,
			rw.Status,
			"",
			"",
			rw.PromptVersion,
			rw.Tone,
			rw.Provider,
			rw.Model,
			rw.FileName,
			rw.SourceKey,
			rw.JobDescription,
			`{"summary":"s"}`,
			true,
			rw.CoverLetter,
			`{"score":50,"matched_keywords":["go"],"missing_keywords":["sql"]}`,
			"",
			"",
			false,
			now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), rw); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

var rewriteColumnNames = []string{
	"id", "user_id", "request_id", "status", "failure_category", "error_message",
	"prompt_version", "tone", "provider", "model", "file_name", "source_key", "job_description",
	"resume", "valid_output", "cover_letter", "ats_audit", "package_key", "email_to", "cache_hit",
	"created_at", "updated_at",
}

func TestPGRepoGetByIDDecodesJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows(rewriteColumnNames).AddRow(
		"rw-1", "guest:abc", "req-1", StatusEmailed, "", "",
		"v3_rag", "formal", "gemini", "gemini-2.0-flash", "cv.docx", "k", "jd",
		[]byte(`{"raw":"oops"}`), false, "letter", []byte(`{"score":12.5,"matched_keywords":[],"missing_keywords":["go"]}`),
		"rewrites/rw-1/package.zip", "a@example.com", true,
		now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM rewrites WHERE id = \\$1").WithArgs("rw-1").WillReturnRows(rows)

	rw, err := (&PGRepo{DB: db}).GetByID(context.Background(), "rw-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(rw.Resume) != `{"raw":"oops"}` || rw.ValidOutput {
		t.Fatalf("unexpected resume: %s", rw.Resume)
	}
	if rw.Audit == nil || rw.Audit.Score != 12.5 || rw.Audit.MissingKeywords[0] != "go" {
		t.Fatalf("unexpected audit: %+v", rw.Audit)
	}
	if !rw.HasPackage() || !rw.CacheHit || rw.Status != StatusEmailed {
		t.Fatalf("unexpected record: %+v", rw)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT (.+) FROM rewrites").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	if _, err := (&PGRepo{DB: db}).GetByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListByUserPaginates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	rows := sqlmock.NewRows(rewriteColumnNames).AddRow(
		"rw-2", "user-1", "", StatusFailed, CategoryLLM, "timeout",
		"v2_1", "confident", "openai", "gpt-4o-mini", "cv.pdf", "", "jd",
		nil, false, "", nil, "", "", false,
		now, now,
	)
	mock.ExpectQuery("ORDER BY created_at DESC, id DESC").
		WithArgs("user-1", 20, 40).
		WillReturnRows(rows)

	items, err := (&PGRepo{DB: db}).ListByUser(context.Background(), "user-1", 20, 40)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 1 || items[0].FailureCategory != CategoryLLM || items[0].Audit != nil || items[0].Resume != nil {
		t.Fatalf("unexpected items: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE rewrites").
		WithArgs("rw-9", StatusEmailFailed, "smtp down", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = (&PGRepo{DB: db}).UpdateStatus(context.Background(), "rw-9", StatusUpdate{Status: StatusEmailFailed, ErrorMessage: "smtp down"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoSetPackage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("UPDATE rewrites SET package_key").
		WithArgs("rw-1", "rewrites/rw-1/package.zip", "a@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (&PGRepo{DB: db}).SetPackage(context.Background(), "rw-1", "rewrites/rw-1/package.zip", "a@example.com"); err != nil {
		t.Fatalf("SetPackage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

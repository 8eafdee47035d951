package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/server/middleware"
)

func TestMemoryServiceCheckAndConsume(t *testing.T) {
	svc := NewService(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Check(ctx, "guest:a"); err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if _, err := svc.Consume(ctx, "guest:a", 1); err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
	}
	u, err := svc.Check(ctx, "guest:a")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if u.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", u.Remaining())
	}
	if _, err := svc.Consume(ctx, "guest:a", 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected Consume to refuse past the limit, got %v", err)
	}

	other, err := svc.Check(ctx, "guest:b")
	if err != nil || other.Used != 0 {
		t.Fatalf("identities must not share quota: %+v %v", other, err)
	}
}

func TestMemoryStoreRollsOver(t *testing.T) {
	store := newMemoryStore(3)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	svc := &Service{store: store}
	ctx := context.Background()

	if _, err := svc.Consume(ctx, "u", 3); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if _, err := svc.Check(ctx, "u"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected exhausted quota, got %v", err)
	}

	store.now = func() time.Time { return start.Add(Period) }
	u, err := svc.Check(ctx, "u")
	if err != nil {
		t.Fatalf("Check after window: %v", err)
	}
	if u.Used != 0 || !u.ResetsAt.Equal(start.Add(2*Period)) {
		t.Fatalf("expected a fresh window, got %+v", u)
	}
}

func TestResetClearsUsage(t *testing.T) {
	svc := NewService(1)
	ctx := context.Background()
	if _, err := svc.Consume(ctx, "u", 1); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	u, err := svc.Reset(ctx, "u")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if u.Used != 0 || u.Limit != 1 {
		t.Fatalf("unexpected usage after reset: %+v", u)
	}
}

func TestDefaultLimitApplies(t *testing.T) {
	u, err := NewService(0).Get(context.Background(), "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Limit != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, u.Limit)
	}
}

func TestPGStoreConsumeInsertsMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := NewPGStore(db, 5)
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT limit_amount, used, resets_at FROM usage WHERE identity = \\$1 FOR UPDATE").
		WithArgs("guest:a").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO usage").
		WithArgs("guest:a", 5, 0, now.Add(Period)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE usage SET used = \\$1 WHERE identity = \\$2").
		WithArgs(1, "guest:a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := NewPostgresService(store).Consume(context.Background(), "guest:a", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if u.Used != 1 || u.Limit != 5 {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreConsumeRollsBackWhenExhausted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := NewPGStore(db, 2)
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT limit_amount, used, resets_at FROM usage").
		WithArgs("u").
		WillReturnRows(sqlmock.NewRows([]string{"limit_amount", "used", "resets_at"}).AddRow(2, 2, now.Add(time.Hour)))
	mock.ExpectRollback()

	u, err := store.Consume(context.Background(), "u", 1)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if u.Used != 2 {
		t.Fatalf("expected the current usage alongside the error, got %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreEnsurePeriodRollsOver(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	store := NewPGStore(db, 10)
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT limit_amount, used, resets_at FROM usage").
		WithArgs("u").
		WillReturnRows(sqlmock.NewRows([]string{"limit_amount", "used", "resets_at"}).AddRow(10, 7, now.Add(-time.Minute)))
	mock.ExpectExec("UPDATE usage SET used = \\$1, resets_at = \\$2 WHERE identity = \\$3").
		WithArgs(0, now.Add(Period), "u").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := store.EnsurePeriod(context.Background(), "u")
	if err != nil {
		t.Fatalf("EnsurePeriod: %v", err)
	}
	if u.Used != 0 || !u.ResetsAt.Equal(now.Add(Period)) {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreReset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	store := NewPGStore(db, 4)
	store.now = func() time.Time { return now }

	mock.ExpectExec("ON CONFLICT \\(identity\\) DO UPDATE").
		WithArgs("u", 4, now.Add(Period)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := store.Reset(context.Background(), "u"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestUsageEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(3)
	if _, err := svc.Consume(context.Background(), "guest:abc", 1); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(middleware.AuthConfig{}))
	h := NewHandler(svc)
	h.RegisterRoutes(api)
	h.RegisterDevRoutes(api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set("X-Guest-Id", "abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Limit     int       `json:"limit"`
		Used      int       `json:"used"`
		Remaining int       `json:"remaining"`
		ResetsAt  time.Time `json:"resets_at"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Limit != 3 || body.Used != 1 || body.Remaining != 2 || body.ResetsAt.IsZero() {
		t.Fatalf("unexpected usage body: %+v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/usage/reset", nil)
	req.Header.Set("X-Guest-Id", "abc")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from reset, got %d", resp.Code)
	}
	if u, _ := svc.Get(context.Background(), "guest:abc"); u.Used != 0 {
		t.Fatalf("expected reset usage, got %+v", u)
	}
}

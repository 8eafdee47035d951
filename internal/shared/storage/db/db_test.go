package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// useMockDriver routes openDB to a fresh sqlmock connection named after the
// test. failFirst makes the first open fail.
func useMockDriver(t *testing.T, failFirst bool) sqlmock.Sqlmock {
	t.Helper()
	dsn := "mock-" + t.Name()
	_, mock, err := sqlmock.NewWithDSN(dsn)
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	prev := openDB
	opens := 0
	openDB = func(_, _ string) (*sql.DB, error) {
		opens++
		if failFirst && opens == 1 {
			return nil, driver.ErrBadConn
		}
		return sql.Open("sqlmock", dsn)
	}
	t.Cleanup(func() { openDB = prev })

	shared.mu.Lock()
	shared.db = nil
	shared.mu.Unlock()
	t.Cleanup(func() {
		shared.mu.Lock()
		shared.db = nil
		shared.mu.Unlock()
	})
	return mock
}

func TestGetSingletonReturnsSamePointer(t *testing.T) {
	useMockDriver(t, false)

	first, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions())
	if err != nil {
		t.Fatalf("GetSingleton first: %v", err)
	}
	second, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions())
	if err != nil {
		t.Fatalf("GetSingleton second: %v", err)
	}
	if first != second {
		t.Fatalf("expected the warm pool to be reused")
	}
}

func TestGetSingletonRetriesAfterFailure(t *testing.T) {
	useMockDriver(t, true)

	if _, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions()); err == nil {
		t.Fatalf("expected first call to fail")
	}
	pool, err := GetSingleton(context.Background(), "postgres://ignored", DefaultLambdaOptions())
	if err != nil || pool == nil {
		t.Fatalf("expected second call to connect, got %v", err)
	}
}

func TestConnectAppliesEnvOverrides(t *testing.T) {
	useMockDriver(t, false)
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	want := Options{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: 20 * time.Minute, ConnMaxIdleTime: 45 * time.Second, PingTimeout: time.Second}
	if opts != want {
		t.Fatalf("OptionsFromEnv = %+v, want %+v", opts, want)
	}

	pool, err := Connect(context.Background(), "postgres://ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()
	if got := pool.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
}

func TestOptionsFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	if opts := OptionsFromEnv(DefaultLambdaOptions()); opts != DefaultLambdaOptions() {
		t.Fatalf("expected defaults to survive invalid overrides, got %+v", opts)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultServerOptions()); !errors.Is(err, ErrNoDatabaseURL) {
		t.Fatalf("expected ErrNoDatabaseURL, got %v", err)
	}
}

func TestProbePingsPool(t *testing.T) {
	useMockDriver(t, false)
	pool, err := Connect(context.Background(), "postgres://ignored", DefaultServerOptions())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	check := Probe(pool, 0)
	if err := check(context.Background()); err != nil {
		t.Fatalf("probe open pool: %v", err)
	}
	pool.Close()
	if err := check(context.Background()); err == nil {
		t.Fatalf("expected probe on closed pool to fail")
	}
}

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	entries, err := migrationFiles.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rewrites and usage migrations, got %d files", len(entries))
	}
	for _, e := range entries {
		raw, err := migrationFiles.ReadFile(migrationsDir + "/" + e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		body := string(raw)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s lacks goose annotations", e.Name())
		}
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	useMockDriver(t, false)
	pool, err := Connect(context.Background(), "postgres://ignored", DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	if err := Migrate(context.Background(), pool, "sideways"); err == nil || !strings.Contains(err.Error(), "unknown migrate command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := Migrate(context.Background(), nil, "up"); !errors.Is(err, ErrNoDatabaseURL) {
		t.Fatalf("expected ErrNoDatabaseURL, got %v", err)
	}
}

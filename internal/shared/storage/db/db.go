package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"

	"resume-revamp/internal/shared/telemetry"
)

// ErrNoDatabaseURL is returned when Postgres is requested without DATABASE_URL.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

const defaultPingTimeout = 5 * time.Second

// Options tunes the pgx-backed pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// openDB is swapped out in tests.
var openDB = sql.Open

// shared holds the pool reused across warm Lambda invocations. The mutex is
// held while connecting, so concurrent callers wait for one attempt and a
// failed attempt leaves the slot empty for the next caller.
var shared struct {
	mu sync.Mutex
	db *sql.DB
}

// IsLambdaRuntime reports whether the process runs inside AWS Lambda.
func IsLambdaRuntime() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// DefaultLambdaOptions keeps the pool small; every concurrent Lambda
// instance holds its own connections.
func DefaultLambdaOptions() Options {
	return Options{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: 15 * time.Minute, ConnMaxIdleTime: 30 * time.Second, PingTimeout: 3 * time.Second}
}

// DefaultServerOptions suits the long-running API and worker processes.
func DefaultServerOptions() Options {
	return Options{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 2 * time.Minute, PingTimeout: defaultPingTimeout}
}

// DefaultMigrateOptions uses a single connection; goose runs serially.
func DefaultMigrateOptions() Options {
	return Options{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 2 * time.Minute, PingTimeout: defaultPingTimeout}
}

// OptionsFromEnv applies DB_* overrides on top of defaults. Unparseable
// values are logged and ignored.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	ints := map[string]*int{
		"DB_MAX_OPEN_CONNS": &opts.MaxOpenConns,
		"DB_MAX_IDLE_CONNS": &opts.MaxIdleConns,
	}
	durations := map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &opts.ConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &opts.ConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &opts.PingTimeout,
	}
	for key, dst := range ints {
		if raw, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				warnInvalid(key, err)
				continue
			}
			*dst = n
		}
	}
	for key, dst := range durations {
		if raw, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(raw)
			if err != nil {
				warnInvalid(key, err)
				continue
			}
			*dst = d
		}
	}
	return opts
}

// Connect opens a pool for databaseURL and pings it before returning.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	pool, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configurePool(pool, opts)

	if err := Probe(pool, opts.PingTimeout)(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	telemetry.Info("db.connected", poolFields(pool))
	return pool, nil
}

// GetSingleton returns the process-wide pool, connecting on first use. A
// failed connect is not cached.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.db != nil {
		telemetry.Debug("db.singleton_reuse", nil)
		return shared.db, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.db = pool
	return pool, nil
}

// Probe returns a health check that pings pool within timeout.
func Probe(pool *sql.DB, timeout time.Duration) func(context.Context) error {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := pool.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		return nil
	}
}

func configurePool(pool *sql.DB, opts Options) {
	fallback := DefaultServerOptions()
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = fallback.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = fallback.MaxIdleConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = fallback.ConnMaxLifetime
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func poolFields(pool *sql.DB) map[string]any {
	s := pool.Stats()
	return map[string]any{"max_open": s.MaxOpenConnections, "open": s.OpenConnections, "idle": s.Idle}
}

func lookupEnv(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

func warnInvalid(key string, err error) {
	telemetry.Warn("db.env_invalid", map[string]any{"key": key, "error": err.Error()})
}

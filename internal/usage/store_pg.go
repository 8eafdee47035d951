package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore keeps quota rows in the usage table.
type PGStore struct {
	DB    *sql.DB
	limit int
	now   func() time.Time
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB, limit int) *PGStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &PGStore{DB: db, limit: limit, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PGStore) EnsurePeriod(ctx context.Context, identity string) (Usage, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (Usage, error) {
		return s.lockAndEnsure(ctx, tx, identity)
	})
}

func (s *PGStore) Consume(ctx context.Context, identity string, n int) (Usage, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (Usage, error) {
		u, err := s.lockAndEnsure(ctx, tx, identity)
		if err != nil {
			return Usage{}, err
		}
		if n <= 0 {
			return u, nil
		}
		if u.Used+n > u.Limit {
			return u, ErrQuotaExceeded
		}
		u.Used += n
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used = $1 WHERE identity = $2`, u.Used, identity); err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

func (s *PGStore) Reset(ctx context.Context, identity string) (Usage, error) {
	u := defaultUsage(s.limit, s.now())
	if _, err := s.DB.ExecContext(ctx, `
INSERT INTO usage (identity, limit_amount, used, resets_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (identity) DO UPDATE SET used = 0, limit_amount = EXCLUDED.limit_amount, resets_at = EXCLUDED.resets_at`,
		identity, u.Limit, u.ResetsAt); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// inTx commits only when fn succeeds; ErrQuotaExceeded rolls back with the usage still returned.
func (s *PGStore) inTx(ctx context.Context, fn func(*sql.Tx) (Usage, error)) (Usage, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	u, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, identity string) (Usage, error) {
	var u Usage
	row := tx.QueryRowContext(ctx, `
SELECT limit_amount, used, resets_at FROM usage WHERE identity = $1 FOR UPDATE`, identity)
	err := row.Scan(&u.Limit, &u.Used, &u.ResetsAt)
	if errors.Is(err, sql.ErrNoRows) {
		u = defaultUsage(s.limit, s.now())
		if _, err := tx.ExecContext(ctx, `
INSERT INTO usage (identity, limit_amount, used, resets_at) VALUES ($1, $2, $3, $4)`,
			identity, u.Limit, u.Used, u.ResetsAt); err != nil {
			return Usage{}, err
		}
		return u, nil
	}
	if err != nil {
		return Usage{}, err
	}

	var rolled bool
	if u, rolled = rollover(u, s.now()); rolled {
		if _, err := tx.ExecContext(ctx, `UPDATE usage SET used = $1, resets_at = $2 WHERE identity = $3`, u.Used, u.ResetsAt, identity); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}

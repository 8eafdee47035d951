package usage

import (
	"context"

	"resume-revamp/internal/shared/telemetry"
)

type store interface {
	EnsurePeriod(ctx context.Context, identity string) (Usage, error)
	Consume(ctx context.Context, identity string, n int) (Usage, error)
	Reset(ctx context.Context, identity string) (Usage, error)
}

// Service enforces the weekly rewrite quota.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService(limit int) *Service {
	return &Service{store: newMemoryStore(limit)}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore *PGStore) *Service {
	return &Service{store: pgStore}
}

// Get returns the current usage, rolling the window over if it has ended.
func (s *Service) Get(ctx context.Context, identity string) (Usage, error) {
	return s.store.EnsurePeriod(ctx, identity)
}

// Check returns ErrQuotaExceeded when no rewrite is left. It does not consume.
func (s *Service) Check(ctx context.Context, identity string) (Usage, error) {
	u, err := s.store.EnsurePeriod(ctx, identity)
	if err != nil {
		return Usage{}, err
	}
	if u.Used >= u.Limit {
		telemetry.Info("usage.quota_exceeded", map[string]any{
			"identity": identity,
			"used":     u.Used,
			"limit":    u.Limit,
		})
		return u, ErrQuotaExceeded
	}
	return u, nil
}

// Consume records n rewrites, failing with ErrQuotaExceeded past the limit.
func (s *Service) Consume(ctx context.Context, identity string, n int) (Usage, error) {
	return s.store.Consume(ctx, identity, n)
}

// Reset sets usage to zero and starts a fresh window.
func (s *Service) Reset(ctx context.Context, identity string) (Usage, error) {
	return s.store.Reset(ctx, identity)
}

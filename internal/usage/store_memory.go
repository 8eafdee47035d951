package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	limit int
	data  map[string]Usage
	now   func() time.Time
}

func newMemoryStore(limit int) *memoryStore {
	return &memoryStore{
		limit: limit,
		data:  make(map[string]Usage),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) EnsurePeriod(ctx context.Context, identity string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(identity), nil
}

// current must be called with mu held.
func (s *memoryStore) current(identity string) Usage {
	now := s.now()
	u, ok := s.data[identity]
	if !ok {
		u = defaultUsage(s.limit, now)
	}
	u, _ = rollover(u, now)
	s.data[identity] = u
	return u
}

func (s *memoryStore) Consume(ctx context.Context, identity string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(identity)
	if n <= 0 {
		return u, nil
	}
	if u.Used+n > u.Limit {
		return u, ErrQuotaExceeded
	}
	u.Used += n
	s.data[identity] = u
	return u, nil
}

func (s *memoryStore) Reset(ctx context.Context, identity string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := defaultUsage(s.limit, s.now())
	s.data[identity] = u
	return u, nil
}

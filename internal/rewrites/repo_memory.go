package rewrites

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores rewrites in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Rewrite
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Rewrite),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the rewrite.
func (r *MemoryRepo) Create(ctx context.Context, rw Rewrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rw.UpdatedAt.IsZero() {
		rw.UpdatedAt = rw.CreatedAt
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rw.ID] = rw
	return nil
}

// GetByID returns a rewrite by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Rewrite, error) {
	if err := ctx.Err(); err != nil {
		return Rewrite{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.byID[id]
	if !ok {
		return Rewrite{}, ErrNotFound
	}
	return rw, nil
}

// ListByUser returns rewrites for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Rewrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var out []Rewrite
	for _, rw := range r.byID {
		if rw.UserID == userID {
			out = append(out, rw)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Rewrite{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// UpdateStatus applies a status transition.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	return r.update(ctx, id, func(rw *Rewrite) {
		rw.Status = upd.Status
		rw.ErrorMessage = upd.ErrorMessage
		if upd.FailureCategory != "" {
			rw.FailureCategory = upd.FailureCategory
		}
	})
}

// SetPackage records the stored zip and the address it was sent to.
func (r *MemoryRepo) SetPackage(ctx context.Context, id, packageKey, emailTo string) error {
	return r.update(ctx, id, func(rw *Rewrite) {
		rw.PackageKey = packageKey
		if emailTo != "" {
			rw.EmailTo = emailTo
		}
	})
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Rewrite)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rw, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&rw)
	rw.UpdatedAt = r.now()
	r.byID[id] = rw
	return nil
}

var _ Repo = (*MemoryRepo)(nil)

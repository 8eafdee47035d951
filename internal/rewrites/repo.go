package rewrites

import "context"

// Repo defines persistence operations for rewrites.
type Repo interface {
	Create(ctx context.Context, rw Rewrite) error
	GetByID(ctx context.Context, id string) (Rewrite, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Rewrite, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
	SetPackage(ctx context.Context, id, packageKey, emailTo string) error
}

// StatusUpdate is a status transition. FailureCategory is kept as-is when empty.
type StatusUpdate struct {
	Status          string
	FailureCategory string
	ErrorMessage    string
}

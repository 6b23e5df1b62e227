package task

import "context"

// Store persists task records. Implementations must apply a Patch
// atomically and report absent identifiers with ErrNotFound.
type Store interface {
	// Find returns every task, most recently created first.
	Find(ctx context.Context) ([]Task, error)
	FindByID(ctx context.Context, id string) (Task, error)
	Create(ctx context.Context, t Task) (Task, error)
	// UpdateByID applies p and returns the updated record.
	UpdateByID(ctx context.Context, id string, p Patch) (Task, error)
	// DeleteByID removes the record and returns it as it was.
	DeleteByID(ctx context.Context, id string) (Task, error)
	Ping(ctx context.Context) error
	Close() error
}

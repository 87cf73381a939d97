package domain

import "context"

// TestRepository persists test snapshots and serves the entity factory's
// uniqueness scan. FindByID returns ErrTestNotFound when no record exists.
type TestRepository interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	FindByID(ctx context.Context, id TestID) (*Snapshot, error)
	ListByDUT(ctx context.Context, dutID DUTID) ([]*Snapshot, error)
}

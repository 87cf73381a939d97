// Package memory provides an in-process test repository for stations that run
// without an etcd backend, and for tests.
package memory

import (
	"context"
	"sync"

	"eol-tester/internal/domain"
)

type testRepository struct {
	mu        sync.RWMutex
	snapshots map[domain.TestID]*domain.Snapshot
	order     []domain.TestID
}

func NewTestRepository() domain.TestRepository {
	return &testRepository{
		snapshots: make(map[domain.TestID]*domain.Snapshot),
	}
}

func (r *testRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.snapshots[snapshot.TestID]; !exists {
		r.order = append(r.order, snapshot.TestID)
	}
	r.snapshots[snapshot.TestID] = snapshot
	return nil
}

func (r *testRepository) FindByID(ctx context.Context, id domain.TestID) (*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot, ok := r.snapshots[id]
	if !ok {
		return nil, domain.ErrTestNotFound
	}
	return snapshot, nil
}

func (r *testRepository) ListByDUT(ctx context.Context, dutID domain.DUTID) ([]*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Snapshot
	// Newest first, matching the etcd-backed repository.
	for i := len(r.order) - 1; i >= 0; i-- {
		s := r.snapshots[r.order[i]]
		if s.DUT != nil && s.DUT.ID == dutID {
			out = append(out, s)
		}
	}
	return out, nil
}

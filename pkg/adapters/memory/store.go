// Package memory provides an in-memory implementation of the ports.TimelineStore
// interface. It is intended for tests, examples, and ephemeral sessions where
// durability across process restarts is not required.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Store keeps timeline snapshots in a map guarded by a mutex.
// It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.TimelineSnapshot
}

// NewStore creates an empty in-memory timeline store.
func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]*domain.TimelineSnapshot),
	}
}

// Save stores a deep copy of the snapshot so later mutations by the caller
// cannot leak into the store.
func (s *Store) Save(ctx context.Context, id string, snap *domain.TimelineSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[id] = snap.Clone()
	return nil
}

// Load retrieves a snapshot by id. The returned value is a deep copy so the
// caller cannot mutate store state.
func (s *Store) Load(ctx context.Context, id string) (*domain.TimelineSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, domain.ErrTimelineNotFound
	}
	return snap.Clone(), nil
}

// Delete removes a snapshot. Deleting an id that does not exist is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, id)
	return nil
}

// List returns the ids of all stored snapshots in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.TimelineStore = (*Store)(nil)

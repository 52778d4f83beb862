package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/branchline/branchline/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.SnapshotKey]*domain.ProgressSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.SnapshotKey]*domain.ProgressSnapshot),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := cloneSnapshot(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = copied
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, key domain.SnapshotKey) (*domain.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return cloneSnapshot(snap), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, key domain.SnapshotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns all stored keys ordered by user then story.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.SnapshotKey, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys, nil
}

func cloneSnapshot(snap *domain.ProgressSnapshot) *domain.ProgressSnapshot {
	c := *snap
	c.ChoiceHistory = append([]domain.ChoiceRecord(nil), snap.ChoiceHistory...)
	c.DiscoveredEndings = append([]string(nil), snap.DiscoveredEndings...)
	return &c
}

package ports

import (
	"context"

	"github.com/branchline/branchline/pkg/domain"
)

// SnapshotStore persists player progress so a play-through can be resumed.
type SnapshotStore interface {
	// Save persists the snapshot for the given key, replacing any previous one.
	Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error

	// Load retrieves the snapshot for the given key.
	// Returns domain.ErrSnapshotNotFound if nothing was saved.
	Load(ctx context.Context, key domain.SnapshotKey) (*domain.ProgressSnapshot, error)

	// Delete removes the snapshot. Deleting a missing key is not an error.
	Delete(ctx context.Context, key domain.SnapshotKey) error

	// List returns the keys of all stored snapshots.
	List(ctx context.Context) ([]domain.SnapshotKey, error)
}

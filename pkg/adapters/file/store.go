package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/branchline/branchline/pkg/domain"
)

// Store implements ports.SnapshotStore using the local filesystem.
// Snapshots live at <BasePath>/<escaped user>/<story>.json.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".branchline/progress".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".branchline", "progress")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) dir(key domain.SnapshotKey) string {
	return filepath.Join(s.BasePath, url.PathEscape(key.UserKey))
}

func (s *Store) path(key domain.SnapshotKey) (string, error) {
	if key.UserKey == "" || key.StoryID == "" {
		return "", fmt.Errorf("snapshot key %q is incomplete", key.String())
	}
	if strings.ContainsAny(key.StoryID, `/\`) || key.StoryID == "." || key.StoryID == ".." {
		return "", fmt.Errorf("invalid story id %q", key.StoryID)
	}
	return filepath.Join(s.dir(key), key.StoryID+".json"), nil
}

// Save persists the snapshot to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error {
	destPath, err := s.path(key)
	if err != nil {
		return err
	}

	dir := s.dir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure progress directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+key.StoryID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing snapshot for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot from its JSON file.
func (s *Store) Load(ctx context.Context, key domain.SnapshotKey) (*domain.ProgressSnapshot, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot file.
func (s *Store) Delete(ctx context.Context, key domain.SnapshotKey) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}

// List returns the keys of all stored snapshots.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotKey, error) {
	users, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.SnapshotKey{}, nil
		}
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}

	var keys []domain.SnapshotKey
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		userKey, err := url.PathUnescape(u.Name())
		if err != nil {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(s.BasePath, u.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list progress of %s: %w", userKey, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
				continue
			}
			keys = append(keys, domain.SnapshotKey{UserKey: userKey, StoryID: strings.TrimSuffix(name, ".json")})
		}
	}
	return keys, nil
}

// Package sqlite provides a SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/branchline/branchline/pkg/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS progress_snapshots (
	user_key              TEXT    NOT NULL,
	story_id              TEXT    NOT NULL,
	current_scene_id      TEXT    NOT NULL,
	completion_percentage INTEGER NOT NULL,
	payload               TEXT    NOT NULL,
	updated_at            INTEGER NOT NULL,
	PRIMARY KEY (user_key, story_id)
);`

// Store persists progress snapshots in SQLite.
// The snapshot JSON is stored verbatim; a few fields are copied into columns for inspection.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite snapshot store at path and creates its table.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the snapshot for key.
func (s *Store) Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key.UserKey == "" || key.StoryID == "" {
		return fmt.Errorf("snapshot key %q is incomplete", key.String())
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO progress_snapshots (
		   user_key,
		   story_id,
		   current_scene_id,
		   completion_percentage,
		   payload,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_key, story_id) DO UPDATE SET
		   current_scene_id = excluded.current_scene_id,
		   completion_percentage = excluded.completion_percentage,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		key.UserKey,
		key.StoryID,
		snap.CurrentSceneID,
		snap.CompletionPercentage,
		string(payload),
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot for key.
func (s *Store) Load(ctx context.Context, key domain.SnapshotKey) (*domain.ProgressSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payload FROM progress_snapshots WHERE user_key = ? AND story_id = ?`,
		key.UserKey,
		key.StoryID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap domain.ProgressSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot for key.
func (s *Store) Delete(ctx context.Context, key domain.SnapshotKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM progress_snapshots WHERE user_key = ? AND story_id = ?`,
		key.UserKey,
		key.StoryID,
	)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// List returns all keys ordered by user then story.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotKey, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_key, story_id FROM progress_snapshots ORDER BY user_key, story_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var keys []domain.SnapshotKey
	for rows.Next() {
		var k domain.SnapshotKey
		if err := rows.Scan(&k.UserKey, &k.StoryID); err != nil {
			return nil, fmt.Errorf("scan snapshot key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot keys: %w", err)
	}
	return keys, nil
}

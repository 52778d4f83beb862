package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/branchline/branchline/pkg/adapters/file"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Store implements SnapshotStore
var _ ports.SnapshotStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()
	key := domain.SnapshotKey{UserKey: "team/alice", StoryID: "branching"}

	require.NoError(t, store.Save(ctx, key, &domain.ProgressSnapshot{CurrentSceneID: "scene_2"}))

	data, err := os.ReadFile(filepath.Join(dir, "team%2Falice", "branching.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"currentSceneId": "scene_2"`)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SnapshotKey{key}, keys)

	leftovers, err := filepath.Glob(filepath.Join(dir, "team%2Falice", "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files must not survive a save")
}

func TestFileStore_RejectsBadKeys(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, key := range []domain.SnapshotKey{
		{UserKey: "", StoryID: "s"},
		{UserKey: "u", StoryID: ""},
		{UserKey: "u", StoryID: "../escape"},
	} {
		assert.Error(t, store.Save(ctx, key, &domain.ProgressSnapshot{}), key.String())
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

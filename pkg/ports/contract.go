package ports

import (
	"context"
	"testing"
	"time"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore implementation
// adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	key := domain.SnapshotKey{UserKey: "contract-user-" + suffix, StoryID: "contract-story"}

	sample := func(scene string) *domain.ProgressSnapshot {
		return &domain.ProgressSnapshot{
			CurrentSceneID: scene,
			ChoiceHistory: []domain.ChoiceRecord{
				{FromSceneID: "scene_1", ChoiceID: "left", Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
			},
			DiscoveredEndings:    []string{"ending_bad"},
			CompletionPercentage: 67,
			TotalChoicesMade:     1,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		want := sample("scene_2")
		require.NoError(t, store.Save(ctx, key, want), "Save should not return error")

		got, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, want.CurrentSceneID, got.CurrentSceneID)
		assert.Equal(t, want.DiscoveredEndings, got.DiscoveredEndings)
		assert.Equal(t, want.CompletionPercentage, got.CompletionPercentage)
		assert.Equal(t, want.TotalChoicesMade, got.TotalChoicesMade)
		require.Len(t, got.ChoiceHistory, 1)
		assert.Equal(t, "left", got.ChoiceHistory[0].ChoiceID)
		assert.True(t, want.ChoiceHistory[0].Timestamp.Equal(got.ChoiceHistory[0].Timestamp))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, sample("scene_3")))
		got, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "scene_3", got.CurrentSceneID)
	})

	t.Run("Keys Are Isolated Per Story", func(t *testing.T) {
		other := domain.SnapshotKey{UserKey: key.UserKey, StoryID: "contract-other"}
		_, err := store.Load(ctx, other)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.SnapshotKey{UserKey: "non-existent-" + suffix, StoryID: "x"})
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, sample("scene_1")))
		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, key), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		k1 := domain.SnapshotKey{UserKey: key.UserKey + "-1", StoryID: "contract-story"}
		k2 := domain.SnapshotKey{UserKey: key.UserKey + "-2", StoryID: "contract-story"}
		require.NoError(t, store.Save(ctx, k1, sample("scene_1")))
		require.NoError(t, store.Save(ctx, k2, sample("scene_1")))
		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}

// RunStoryRepositoryContract verifies a StoryRepository that has been seeded with want.
func RunStoryRepositoryContract(t *testing.T, repo StoryRepository, want *domain.Story) {
	t.Helper()
	ctx := context.Background()

	t.Run("FetchStory_Success", func(t *testing.T) {
		got, err := repo.FetchStory(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.StartSceneID, got.StartSceneID)
		require.Len(t, got.Scenes, len(want.Scenes))
		for id, scene := range want.Scenes {
			loaded, ok := got.Scenes[id]
			require.True(t, ok, "scene %s missing", id)
			assert.Equal(t, scene.IsEnding, loaded.IsEnding, "scene %s", id)
			assert.Equal(t, scene.EndingType, loaded.EndingType, "scene %s", id)
			assert.Equal(t, scene.AudioRef, loaded.AudioRef, "scene %s", id)
			require.Len(t, loaded.Choices, len(scene.Choices), "scene %s", id)
			for i, c := range scene.Choices {
				assert.Equal(t, c.ID, loaded.Choices[i].ID)
				assert.Equal(t, c.NextSceneID, loaded.Choices[i].NextSceneID)
			}
		}
	})

	t.Run("FetchStory_NotFound", func(t *testing.T) {
		_, err := repo.FetchStory(ctx, "non-existent-story")
		assert.ErrorIs(t, err, domain.ErrStoryNotFound)
	})

	t.Run("ListStories", func(t *testing.T) {
		ids, err := repo.ListStories(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, want.ID)
	})
}

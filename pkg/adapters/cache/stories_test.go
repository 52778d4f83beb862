package cache_test

import (
	"context"
	"testing"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/adapters/cache"
	"github.com/branchline/branchline/pkg/adapters/memory"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepository counts fetches reaching the backing repository.
type countingRepository struct {
	ports.StoryRepository
	fetches map[string]int
}

func (c *countingRepository) FetchStory(ctx context.Context, id string) (*domain.Story, error) {
	c.fetches[id]++
	return c.StoryRepository.FetchStory(ctx, id)
}

func newCounting(t *testing.T) *countingRepository {
	t.Helper()
	repo, err := memory.NewStoryRepository(testutils.BranchingStory(), testutils.CyclicStory())
	require.NoError(t, err)
	return &countingRepository{StoryRepository: repo, fetches: make(map[string]int)}
}

func TestCache_Contract(t *testing.T) {
	repo, err := cache.NewStoryRepository(newCounting(t), 4)
	require.NoError(t, err)
	want := testutils.BranchingStory()
	ports.RunStoryRepositoryContract(t, repo, &want)
}

func TestCache_HitsAndEviction(t *testing.T) {
	backing := newCounting(t)
	repo, err := cache.NewStoryRepository(backing, 1)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.FetchStory(ctx, "branching")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backing.fetches["branching"])

	_, err = repo.FetchStory(ctx, "cyclic")
	require.NoError(t, err)
	_, err = repo.FetchStory(ctx, "branching")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.fetches["branching"], "size 1 evicts the older story")
}

func TestCache_MissesAreNotCached(t *testing.T) {
	backing := newCounting(t)
	repo, err := cache.NewStoryRepository(backing, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.FetchStory(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrStoryNotFound)
	}
	assert.Equal(t, 2, backing.fetches["missing"])
	assert.Zero(t, repo.Len())
}

func TestCache_CopiesAndInvalidate(t *testing.T) {
	backing := newCounting(t)
	repo, err := cache.NewStoryRepository(backing, 4)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := repo.FetchStory(ctx, "branching")
	require.NoError(t, err)
	first.Scenes["scene_1"] = domain.Scene{ID: "mutated"}

	second, err := repo.FetchStory(ctx, "branching")
	require.NoError(t, err)
	assert.Equal(t, "scene_1", second.Scenes["scene_1"].ID)

	repo.Invalidate("branching")
	_, err = repo.FetchStory(ctx, "branching")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.fetches["branching"])

	repo.Invalidate("")
	assert.Zero(t, repo.Len())
}

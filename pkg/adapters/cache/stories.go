// Package cache provides an in-process LRU cache in front of a StoryRepository.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize is the number of stories kept when no size is given.
const DefaultSize = 64

// StoryRepository caches fetched stories. Misses, including NotFound, go to the
// wrapped repository every time; listings are never cached.
type StoryRepository struct {
	next   ports.StoryRepository
	cache  *lru.Cache
	logger *slog.Logger
}

// Option configures the cache.
type Option func(*StoryRepository)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *StoryRepository) {
		r.logger = logger
	}
}

// NewStoryRepository wraps next with an LRU cache holding up to size stories.
func NewStoryRepository(next ports.StoryRepository, size int, opts ...Option) (*StoryRepository, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create story cache: %w", err)
	}
	r := &StoryRepository{next: next, cache: cache, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FetchStory returns a copy of the cached story, fetching it on a miss.
func (r *StoryRepository) FetchStory(ctx context.Context, storyID string) (*domain.Story, error) {
	if v, ok := r.cache.Get(storyID); ok {
		r.logger.Debug("Story cache hit", "story_id", storyID)
		return v.(*domain.Story).Clone(), nil
	}

	def, err := r.next.FetchStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(storyID, def.Clone())
	return def, nil
}

// ListStories delegates to the wrapped repository.
func (r *StoryRepository) ListStories(ctx context.Context) ([]string, error) {
	return r.next.ListStories(ctx)
}

// Invalidate drops storyID from the cache, or everything when storyID is empty.
func (r *StoryRepository) Invalidate(storyID string) {
	if storyID == "" {
		r.cache.Purge()
		return
	}
	r.cache.Remove(storyID)
}

// Len reports the number of cached stories.
func (r *StoryRepository) Len() int {
	return r.cache.Len()
}

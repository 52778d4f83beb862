package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/branchline/branchline/pkg/domain"
)

// StoryRepository implements ports.StoryRepository over serialized stories kept in memory.
type StoryRepository struct {
	mu      sync.RWMutex
	stories map[string][]byte
}

// NewStoryRepository creates a repository seeded with stories.
// Stories are serialized so callers get independent copies on every fetch.
func NewStoryRepository(stories ...domain.Story) (*StoryRepository, error) {
	r := &StoryRepository{stories: make(map[string][]byte)}
	for _, s := range stories {
		if err := r.Put(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put adds or replaces a story.
func (r *StoryRepository) Put(s domain.Story) error {
	if s.ID == "" {
		return fmt.Errorf("story missing ID")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal story %s: %w", s.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[s.ID] = data
	return nil
}

// FetchStory returns a copy of the story.
func (r *StoryRepository) FetchStory(ctx context.Context, storyID string) (*domain.Story, error) {
	r.mu.RLock()
	data, ok := r.stories[storyID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}

	var s domain.Story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode story %s: %w", storyID, err)
	}
	return &s, nil
}

// ListStories returns all story ids.
func (r *StoryRepository) ListStories(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stories))
	for id := range r.stories {
		ids = append(ids, id)
	}
	sort.Strings(ids) // Deterministic order
	return ids, nil
}

package ports

import (
	"context"

	"github.com/branchline/branchline/pkg/domain"
)

// StoryRepository defines how the engine retrieves story definitions.
// This allows the content source (files, Loam, HTTP) to be decoupled.
type StoryRepository interface {
	// FetchStory returns the raw definition of a story.
	// Returns domain.ErrStoryNotFound if the story does not exist.
	FetchStory(ctx context.Context, storyID string) (*domain.Story, error)

	// ListStories returns the ids of all available stories, sorted.
	ListStories(ctx context.Context) ([]string, error)
}

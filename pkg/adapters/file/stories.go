package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/story"
)

// storyExtensions are tried in order when resolving a story id.
var storyExtensions = []string{".json", ".yaml", ".yml"}

// StoryRepository implements ports.StoryRepository over a directory holding one
// file per story (<id>.json, <id>.yaml or <id>.yml).
type StoryRepository struct {
	Dir string
}

// NewStoryRepository creates a repository reading stories from dir.
func NewStoryRepository(dir string) *StoryRepository {
	return &StoryRepository{Dir: dir}
}

// FetchStory reads and parses the story file. A definition without an id takes
// the file name.
func (r *StoryRepository) FetchStory(ctx context.Context, storyID string) (*domain.Story, error) {
	if storyID == "" || strings.ContainsAny(storyID, `/\`) {
		return nil, fmt.Errorf("%w: invalid id %q", domain.ErrStoryNotFound, storyID)
	}

	for _, ext := range storyExtensions {
		data, err := os.ReadFile(filepath.Join(r.Dir, storyID+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read story %s: %w", storyID, err)
		}

		def, err := story.Parse(data)
		if err != nil {
			return nil, &story.MalformedStoryError{StoryID: storyID, Reason: "unreadable definition", Err: err}
		}
		if def.ID == "" {
			def.ID = storyID
		}
		return &def, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
}

// ListStories returns the ids of every story file in the directory.
func (r *StoryRepository) ListStories(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, known := range storyExtensions {
			if ext == known {
				seen[strings.TrimSuffix(e.Name(), ext)] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

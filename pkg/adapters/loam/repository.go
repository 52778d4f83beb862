package loam

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/branchline/branchline/pkg/domain"
)

// StoryRepository adapts a Loam repository to ports.StoryRepository.
// Each story is a directory; each Markdown/YAML/JSON document inside is a scene.
//
//	stories/
//	  lantern/
//	    dark.md   (start: true)
//	    lit.md
type StoryRepository struct {
	Repo *loam.TypedRepository[SceneMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[SceneMetadata]) *StoryRepository {
	return &StoryRepository{
		Repo: repo,
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*StoryRepository, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[SceneMetadata](repo)), nil
}

// FetchStory assembles the story from the scene documents of its directory.
func (r *StoryRepository) FetchStory(ctx context.Context, storyID string) (*domain.Story, error) {
	docs, err := r.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	def := &domain.Story{ID: storyID, Scenes: make(map[string]domain.Scene)}
	seen := make(map[string]string)

	for _, listed := range docs {
		docPath := trimExtension(listed.ID)
		if path.Dir(docPath) != storyID {
			continue
		}

		// List only carries frontmatter; the scene text needs the full document.
		doc, err := r.Repo.Get(ctx, listed.ID)
		if err != nil {
			return nil, fmt.Errorf("loam get failed for %s: %w", listed.ID, err)
		}

		meta := doc.Data
		sceneID := meta.ID
		if sceneID == "" {
			sceneID = path.Base(docPath)
		}

		// Collision Detection
		if existing, ok := seen[sceneID]; ok {
			return nil, fmt.Errorf("collision detected: scene '%s' is defined in both '%s' and '%s'", sceneID, existing, listed.ID)
		}
		seen[sceneID] = listed.ID

		def.Scenes[sceneID] = toScene(sceneID, meta, doc.Content)
		if meta.Start {
			if def.StartSceneID != "" {
				return nil, fmt.Errorf("story %s has more than one start scene: '%s' and '%s'", storyID, def.StartSceneID, sceneID)
			}
			def.StartSceneID = sceneID
		}
		if meta.StoryTitle != "" {
			def.Title = meta.StoryTitle
		}
	}

	if len(def.Scenes) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}
	return def, nil
}

// ListStories returns every directory holding at least one scene.
func (r *StoryRepository) ListStories(ctx context.Context) ([]string, error) {
	docs, err := r.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]bool)
	for _, doc := range docs {
		dir := path.Dir(trimExtension(doc.ID))
		if dir == "." {
			continue
		}
		seen[dir] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func toScene(id string, meta SceneMetadata, content string) domain.Scene {
	scene := domain.Scene{
		ID:         id,
		Title:      meta.Title,
		Text:       strings.TrimSpace(content),
		AudioRef:   meta.AudioRef,
		IsEnding:   meta.IsEnding,
		EndingType: domain.EndingType(meta.EndingType),
		Choices:    make([]domain.Choice, 0, len(meta.Choices)),
	}
	for _, c := range meta.Choices {
		scene.Choices = append(scene.Choices, domain.Choice{
			ID:              c.ID,
			Text:            c.Text,
			NextSceneID:     c.To,
			ConsequenceHint: c.Hint,
		})
	}
	return scene
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

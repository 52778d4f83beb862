package story

import (
	"fmt"
	"sort"

	"github.com/branchline/branchline/pkg/domain"
)

// Graph is the validated, queryable scene graph of one story. Safe for concurrent reads.
type Graph struct {
	id       string
	title    string
	start    string
	scenes   map[string]domain.Scene
	order    []string
	nonEnd   int
	endings  int
	declared *int
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	strict bool
}

// WithStrict makes Load fail on any integrity problem Validate would report.
func WithStrict() LoadOption {
	return func(c *loadConfig) {
		c.strict = true
	}
}

// Load indexes a story definition into a Graph.
// It fails with a *MalformedStoryError if the start scene does not resolve.
func Load(def domain.Story, opts ...LoadOption) (*Graph, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Graph{
		id:     def.ID,
		title:  def.Title,
		start:  def.StartSceneID,
		scenes: make(map[string]domain.Scene, len(def.Scenes)),
		order:  make([]string, 0, len(def.Scenes)),
	}
	if def.TotalEndings != nil {
		declared := *def.TotalEndings
		g.declared = &declared
	}

	for key, scene := range def.Scenes {
		if scene.ID == "" {
			scene.ID = key
		}
		if scene.ID != key {
			return nil, &MalformedStoryError{
				StoryID: def.ID,
				Reason:  fmt.Sprintf("scene keyed %q declares id %q", key, scene.ID),
			}
		}
		scene.Choices = cloneChoices(scene.Choices)
		g.scenes[key] = scene
		g.order = append(g.order, key)

		if scene.IsEnding {
			g.endings++
		} else {
			g.nonEnd++
		}
	}
	sort.Strings(g.order)

	if g.start == "" {
		return nil, &MalformedStoryError{StoryID: def.ID, Reason: "startSceneId is empty"}
	}
	if _, ok := g.scenes[g.start]; !ok {
		return nil, &MalformedStoryError{
			StoryID: def.ID,
			Reason:  fmt.Sprintf("start scene %q does not resolve", g.start),
			Err:     domain.ErrSceneNotFound,
		}
	}

	if cfg.strict {
		if err := g.Validate(); err != nil {
			return nil, &MalformedStoryError{StoryID: def.ID, Reason: "integrity check failed", Err: err}
		}
	}

	return g, nil
}

// ID returns the story id.
func (g *Graph) ID() string { return g.id }

// Title returns the story title, if any.
func (g *Graph) Title() string { return g.title }

// StartSceneID returns the id of the entry scene.
func (g *Graph) StartSceneID() string { return g.start }

// NonEndingSceneCount returns the number of scenes that are not endings.
func (g *Graph) NonEndingSceneCount() int { return g.nonEnd }

// TotalEndings returns the number of ending scenes in the graph.
func (g *Graph) TotalEndings() int { return g.endings }

// Len returns the number of scenes.
func (g *Graph) Len() int { return len(g.scenes) }

// Has reports whether sceneID resolves.
func (g *Graph) Has(sceneID string) bool {
	_, ok := g.scenes[sceneID]
	return ok
}

// Resolve returns the scene with the given id, or an error wrapping domain.ErrSceneNotFound.
func (g *Graph) Resolve(sceneID string) (domain.Scene, error) {
	scene, ok := g.scenes[sceneID]
	if !ok {
		return domain.Scene{}, fmt.Errorf("%w: %s", domain.ErrSceneNotFound, sceneID)
	}
	scene.Choices = cloneChoices(scene.Choices)
	return scene, nil
}

// IsEnding reports whether sceneID resolves to an ending scene.
func (g *Graph) IsEnding(sceneID string) bool {
	scene, ok := g.scenes[sceneID]
	return ok && scene.IsEnding
}

// SceneIDs returns all scene ids in lexical order.
func (g *Graph) SceneIDs() []string {
	return append([]string(nil), g.order...)
}

// Scenes returns copies of all scenes in lexical id order.
func (g *Graph) Scenes() []domain.Scene {
	out := make([]domain.Scene, 0, len(g.order))
	for _, id := range g.order {
		scene, _ := g.Resolve(id)
		out = append(out, scene)
	}
	return out
}

// Definition rebuilds the wire definition of the story.
// TotalEndings is always populated with the computed count.
func (g *Graph) Definition() domain.Story {
	total := g.endings
	def := domain.Story{
		ID:           g.id,
		Title:        g.title,
		StartSceneID: g.start,
		Scenes:       make(map[string]domain.Scene, len(g.scenes)),
		TotalEndings: &total,
	}
	for _, scene := range g.Scenes() {
		def.Scenes[scene.ID] = scene
	}
	return def
}

func cloneChoices(in []domain.Choice) []domain.Choice {
	out := make([]domain.Choice, len(in))
	copy(out, in)
	return out
}

// Package completion computes how much of a story a play-through has seen.
package completion

import (
	"math"

	"github.com/branchline/branchline/pkg/domain"
)

// Graph is the subset of the story graph the tracker needs.
type Graph interface {
	NonEndingSceneCount() int
	IsEnding(sceneID string) bool
	Has(sceneID string) bool
}

// Percentage returns the share (0..100) of distinct non-ending scenes visited.
// Endings count toward neither side of the ratio; they are tracked as discovered
// endings instead. Ids that do not resolve in the graph are ignored. A story with
// no non-ending scenes is complete by definition.
func Percentage(visited domain.SceneSet, g Graph) int {
	total := g.NonEndingSceneCount()
	if total == 0 {
		return 100
	}

	n := 0
	for id := range visited {
		if g.Has(id) && !g.IsEnding(id) {
			n++
		}
	}

	pct := int(math.Round(float64(n) / float64(total) * 100))
	return min(100, pct)
}

package story

import "fmt"

// Validate crawls the graph from the start scene and reports dangling choices,
// unreachable scenes, ending/choice invariant breaks and a mismatching declared
// ending count. It returns nil or an *AggregateError.
func (g *Graph) Validate() error {
	var errs []error

	if g.declared != nil && *g.declared != g.endings {
		errs = append(errs, &IntegrityError{
			Reason: fmt.Sprintf("totalEndings declares %d but story has %d ending scenes", *g.declared, g.endings),
		})
	}

	for _, id := range g.order {
		scene := g.scenes[id]
		switch {
		case scene.IsEnding && len(scene.Choices) > 0:
			errs = append(errs, &IntegrityError{SceneID: id, Reason: "ending scene must not offer choices"})
		case !scene.IsEnding && len(scene.Choices) == 0:
			errs = append(errs, &IntegrityError{SceneID: id, Reason: "non-ending scene has no choices"})
		}
		if scene.IsEnding && scene.EndingType != "" && !scene.EndingType.Valid() {
			errs = append(errs, &IntegrityError{SceneID: id, Reason: fmt.Sprintf("unknown ending type %q", scene.EndingType)})
		}

		seen := make(map[string]bool, len(scene.Choices))
		for _, c := range scene.Choices {
			if seen[c.ID] {
				errs = append(errs, &IntegrityError{SceneID: id, Reason: fmt.Sprintf("duplicate choice id %q", c.ID)})
			}
			seen[c.ID] = true
			if _, ok := g.scenes[c.NextSceneID]; !ok {
				errs = append(errs, &IntegrityError{
					SceneID: id,
					Reason:  fmt.Sprintf("choice %q points to missing scene %q", c.ID, c.NextSceneID),
				})
			}
		}
	}

	reachable := g.Reachable()
	for _, id := range g.order {
		if !reachable[id] {
			errs = append(errs, &IntegrityError{SceneID: id, Reason: "unreachable from start scene"})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Reachable returns the set of scene ids reachable from the start scene.
// The graph may contain cycles.
func (g *Graph) Reachable() map[string]bool {
	visited := make(map[string]bool, len(g.scenes))
	queue := []string{g.start}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		scene, ok := g.scenes[currentID]
		if !ok {
			continue
		}
		visited[currentID] = true

		for _, c := range scene.Choices {
			if !visited[c.NextSceneID] {
				queue = append(queue, c.NextSceneID)
			}
		}
	}
	return visited
}

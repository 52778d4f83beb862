package graph

import (
	"fmt"
	"strings"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/story"
)

// Overlay contains play-through data to visualize on the graph.
type Overlay struct {
	VisitedScenes []string
	CurrentScene  string
	Endings       []string
}

// OverlayFor builds an overlay from a session state.
func OverlayFor(state *domain.SessionState) *Overlay {
	if state == nil {
		return nil
	}
	return &Overlay{
		VisitedScenes: state.VisitedSceneIDs.Sorted(),
		CurrentScene:  state.CurrentSceneID,
		Endings:       state.DiscoveredEndings.Sorted(),
	}
}

// ToMermaid produces a Mermaid flowchart of the story graph.
// It applies semantic styling:
// - Start scene: ((Circle))
// - Ending: ([Stadium]), classed by ending type
// - Default: [Rectangle]
// Choices become labelled edges; a choice pointing at a missing scene is drawn
// dashed towards a placeholder node.
func ToMermaid(g *story.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	missing := make(map[string]bool)
	endingTypes := make(map[domain.EndingType][]string)

	for _, scene := range g.Scenes() {
		safeID := sanitizeMermaidID(scene.ID)

		opener, closer := "[", "]"
		switch {
		case scene.ID == g.StartSceneID():
			opener, closer = "((", "))"
		case scene.IsEnding:
			opener, closer = "([", "])"
		}
		if scene.IsEnding && scene.EndingType != "" {
			endingTypes[scene.EndingType] = append(endingTypes[scene.EndingType], safeID)
		}

		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(nodeLabel(scene)), closer))

		for _, c := range scene.Choices {
			safeTo := sanitizeMermaidID(c.NextSceneID)
			label := escapeLabel(c.Text)
			if !g.Has(c.NextSceneID) {
				missing[c.NextSceneID] = true
				sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", safeID, label, safeTo))
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeID, label, safeTo))
		}
	}

	for _, id := range sortedKeys(missing) {
		sb.WriteString(fmt.Sprintf("    %s{{\"missing: %s\"}}\n", sanitizeMermaidID(id), escapeLabel(id)))
	}

	if len(endingTypes) > 0 || len(missing) > 0 {
		sb.WriteString("\n    %% Scene Styles\n")
		sb.WriteString("    classDef good fill:#c8e6c9,stroke:#2e7d32,color:#000;\n")
		sb.WriteString("    classDef bad fill:#ffcdd2,stroke:#c62828,color:#000;\n")
		sb.WriteString("    classDef secret fill:#e1bee7,stroke:#6a1b9a,color:#000;\n")
		if len(missing) > 0 {
			sb.WriteString("    classDef missing stroke:#c62828,stroke-dasharray:4 4,color:#c62828;\n")
		}
		for _, t := range []domain.EndingType{domain.EndingGood, domain.EndingBad, domain.EndingSecret} {
			for _, id := range endingTypes[t] {
				sb.WriteString(fmt.Sprintf("    class %s %s;\n", id, t))
			}
		}
		for _, id := range sortedKeys(missing) {
			sb.WriteString(fmt.Sprintf("    class %s missing;\n", sanitizeMermaidID(id)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef discovered stroke:#ff6f00,stroke-width:4px;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedScenes {
			safeID := sanitizeMermaidID(id)
			if g.Has(id) && !visited[safeID] {
				visited[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		for _, id := range overlay.Endings {
			if g.Has(id) {
				sb.WriteString(fmt.Sprintf("    class %s discovered;\n", sanitizeMermaidID(id)))
			}
		}
		if overlay.CurrentScene != "" && g.Has(overlay.CurrentScene) {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentScene)))
		}
	}

	return sb.String()
}

func nodeLabel(scene domain.Scene) string {
	if scene.Title == "" || scene.Title == scene.ID {
		return scene.ID
	}
	return scene.Title + " <br/> " + scene.ID
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sortedKeys(m map[string]bool) []string {
	set := domain.NewSceneSet()
	for k := range m {
		set.Add(k)
	}
	return set.Sorted()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Package progress converts between live session state and the persisted
// ProgressSnapshot format.
package progress

import (
	"github.com/branchline/branchline/pkg/completion"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/story"
)

// Drift lists what Decode had to discard because the story changed since the
// snapshot was written. A nil *Drift means the snapshot applied cleanly.
type Drift struct {
	// StaleSceneID is the snapshot's current scene when it no longer resolves.
	StaleSceneID string
	// DroppedEndings are discovered endings that are no longer ending scenes.
	DroppedEndings []string
	// UnresolvedRecords counts history records whose scene or choice is gone.
	UnresolvedRecords int
	// CompletionRecomputed is set when the stored percentage was replaced.
	CompletionRecomputed bool
}

// Encode projects a session state onto its persisted form.
func Encode(state *domain.SessionState) *domain.ProgressSnapshot {
	return &domain.ProgressSnapshot{
		CurrentSceneID:       state.CurrentSceneID,
		ChoiceHistory:        append([]domain.ChoiceRecord{}, state.ChoiceHistory...),
		DiscoveredEndings:    state.DiscoveredEndings.Sorted(),
		CompletionPercentage: state.CompletionPercentage,
		TotalChoicesMade:     state.TotalChoicesMade,
	}
}

// Decode rebuilds a session state from a snapshot against the current story.
//
// Story content may have changed since the snapshot was written; that is
// treated as expected drift, never as an error. A current scene that no longer
// resolves falls back to the start scene and endings that no longer exist are
// dropped. Choice history is kept verbatim.
//
// The visited set is an approximation of true history: the start scene, every
// recorded origin scene, every scene a recorded choice currently leads to, and
// the current scene. Ids that do not resolve are left out. It is a superset of
// what was actually visited when a transition was pending at snapshot time.
func Decode(snap *domain.ProgressSnapshot, g *story.Graph) (*domain.SessionState, *Drift) {
	state := domain.NewSessionState(g.ID(), g.StartSceneID())
	if snap == nil {
		return state, nil
	}
	drift := &Drift{}

	if g.Has(snap.CurrentSceneID) {
		state.CurrentSceneID = snap.CurrentSceneID
	} else {
		drift.StaleSceneID = snap.CurrentSceneID
	}

	state.ChoiceHistory = append(state.ChoiceHistory, snap.ChoiceHistory...)
	for _, rec := range snap.ChoiceHistory {
		from, err := g.Resolve(rec.FromSceneID)
		if err != nil {
			drift.UnresolvedRecords++
			continue
		}
		state.VisitedSceneIDs.Add(from.ID)

		choice, ok := from.Choice(rec.ChoiceID)
		if !ok || !g.Has(choice.NextSceneID) {
			drift.UnresolvedRecords++
			continue
		}
		state.VisitedSceneIDs.Add(choice.NextSceneID)
	}
	state.VisitedSceneIDs.Add(state.CurrentSceneID)

	for _, id := range snap.DiscoveredEndings {
		if g.IsEnding(id) {
			state.DiscoveredEndings.Add(id)
		} else {
			drift.DroppedEndings = append(drift.DroppedEndings, id)
		}
	}

	state.TotalChoicesMade = snap.TotalChoicesMade
	if state.TotalChoicesMade < 0 {
		state.TotalChoicesMade = len(state.ChoiceHistory)
	}

	state.CompletionPercentage = snap.CompletionPercentage
	if drift.StaleSceneID != "" || snap.CompletionPercentage < 0 || snap.CompletionPercentage > 100 {
		state.CompletionPercentage = completion.Percentage(state.VisitedSceneIDs, g)
		drift.CompletionRecomputed = true
	}

	state.AtEnding = g.IsEnding(state.CurrentSceneID)

	if drift.empty() {
		return state, nil
	}
	return state, drift
}

func (d *Drift) empty() bool {
	return d.StaleSceneID == "" &&
		len(d.DroppedEndings) == 0 &&
		d.UnresolvedRecords == 0 &&
		!d.CompletionRecomputed
}

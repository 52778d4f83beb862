package session

import (
	"time"

	"github.com/branchline/branchline/pkg/completion"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/story"
)

// EventKind enumerates the inputs of the transition function.
type EventKind int

const (
	// EventSelectChoice commits a choice (phase one of a transition).
	EventSelectChoice EventKind = iota
	// EventTransitionElapsed applies the pending scene change (phase two).
	EventTransitionElapsed
	// EventRestart returns to the start scene, keeping discovered endings.
	EventRestart
)

func (k EventKind) String() string {
	switch k {
	case EventSelectChoice:
		return "select_choice"
	case EventTransitionElapsed:
		return "transition_elapsed"
	case EventRestart:
		return "restart"
	}
	return "unknown"
}

// Event is an input to Reduce.
type Event struct {
	Kind     EventKind
	ChoiceID string    // EventSelectChoice only
	At       time.Time // timestamp recorded for committed choices
}

// Result classifies what Reduce did with an event.
type Result int

const (
	// ResultIgnored means the event was dropped without looking at it (reentrancy guard).
	ResultIgnored Result = iota
	// ResultRejected means the event was invalid for the current scene; state is unchanged.
	ResultRejected
	// ResultChoiceCommitted means a choice was recorded and a transition is pending.
	ResultChoiceCommitted
	// ResultSceneEntered means the pending transition was applied.
	ResultSceneEntered
	// ResultRestarted means the play-through was reset to the start scene.
	ResultRestarted
)

func (r Result) String() string {
	switch r {
	case ResultIgnored:
		return "ignored"
	case ResultRejected:
		return "rejected"
	case ResultChoiceCommitted:
		return "choice_committed"
	case ResultSceneEntered:
		return "scene_entered"
	case ResultRestarted:
		return "restarted"
	}
	return "unknown"
}

// Changed reports whether the result produced a new state.
func (r Result) Changed() bool {
	return r >= ResultChoiceCommitted
}

// Outcome describes the effect of one Reduce call.
type Outcome struct {
	Result Result
	// Reason explains an ignored or rejected event.
	Reason string
	// Integrity is set when a rejection points at a broken story graph.
	Integrity bool

	// Record is the committed choice (ResultChoiceCommitted).
	Record *domain.ChoiceRecord
	// NextSceneID is the target of the committed choice.
	NextSceneID string

	// Scene is the scene now current (ResultSceneEntered, ResultRestarted).
	Scene *domain.Scene
	// PreviousSceneID is the scene that was left.
	PreviousSceneID string
	// NewEnding is set when the entered scene was not yet a discovered ending.
	NewEnding bool
}

// Reduce is the transition function of the narrative state machine.
// It never mutates state. Callers always adopt the returned state; an ignored
// event returns the same pointer.
func Reduce(g *story.Graph, state *domain.SessionState, ev Event) (*domain.SessionState, Outcome) {
	switch ev.Kind {
	case EventSelectChoice:
		return reduceSelect(g, state, ev)
	case EventTransitionElapsed:
		return reduceElapsed(g, state)
	case EventRestart:
		return reduceRestart(g, state)
	}
	return state, Outcome{Result: ResultIgnored, Reason: "unknown event"}
}

func reduceSelect(g *story.Graph, state *domain.SessionState, ev Event) (*domain.SessionState, Outcome) {
	if state.Transitioning {
		return state, Outcome{Result: ResultIgnored, Reason: "transition in progress"}
	}

	scene, err := g.Resolve(state.CurrentSceneID)
	if err != nil {
		return state, Outcome{Result: ResultRejected, Reason: "current scene does not resolve", Integrity: true}
	}
	choice, ok := scene.Choice(ev.ChoiceID)
	if !ok {
		return state, Outcome{Result: ResultRejected, Reason: "choice not offered by current scene"}
	}
	if !g.Has(choice.NextSceneID) {
		return state, Outcome{Result: ResultRejected, Reason: "choice leads to a missing scene", Integrity: true}
	}

	rec := domain.ChoiceRecord{
		FromSceneID: state.CurrentSceneID,
		ChoiceID:    choice.ID,
		Timestamp:   ev.At,
	}

	next := state.Clone()
	next.ChoiceHistory = append(next.ChoiceHistory, rec)
	next.TotalChoicesMade++
	next.Transitioning = true
	next.PendingSceneID = choice.NextSceneID

	return next, Outcome{Result: ResultChoiceCommitted, Record: &rec, NextSceneID: choice.NextSceneID}
}

func reduceElapsed(g *story.Graph, state *domain.SessionState) (*domain.SessionState, Outcome) {
	if !state.Transitioning {
		return state, Outcome{Result: ResultIgnored, Reason: "no transition pending"}
	}

	scene, err := g.Resolve(state.PendingSceneID)
	if err != nil {
		next := state.Clone()
		next.Transitioning = false
		next.PendingSceneID = ""
		return next, Outcome{Result: ResultRejected, Reason: "pending scene does not resolve", Integrity: true}
	}

	next := state.Clone()
	prev := next.CurrentSceneID
	next.CurrentSceneID = scene.ID
	next.VisitedSceneIDs.Add(scene.ID)
	next.CompletionPercentage = completion.Percentage(next.VisitedSceneIDs, g)
	next.AtEnding = scene.IsEnding

	newEnding := false
	if scene.IsEnding {
		newEnding = next.DiscoveredEndings.Add(scene.ID)
	}

	next.Transitioning = false
	next.PendingSceneID = ""

	return next, Outcome{
		Result:          ResultSceneEntered,
		Scene:           &scene,
		PreviousSceneID: prev,
		NewEnding:       newEnding,
	}
}

func reduceRestart(g *story.Graph, state *domain.SessionState) (*domain.SessionState, Outcome) {
	start, err := g.Resolve(g.StartSceneID())
	if err != nil {
		return state, Outcome{Result: ResultRejected, Reason: "start scene does not resolve", Integrity: true}
	}

	next := domain.NewSessionState(g.ID(), start.ID)
	next.DiscoveredEndings = state.DiscoveredEndings.Clone()

	return next, Outcome{
		Result:          ResultRestarted,
		Scene:           &start,
		PreviousSceneID: state.CurrentSceneID,
	}
}

package session_test

import (
	"testing"
	"time"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce_DoesNotMutateInput(t *testing.T) {
	g, err := story.Load(testutils.BranchingStory())
	require.NoError(t, err)

	state := domain.NewSessionState(g.ID(), g.StartSceneID())
	before := state.Clone()

	next, out := session.Reduce(g, state, session.Event{Kind: session.EventSelectChoice, ChoiceID: "left", At: time.Unix(1, 0)})
	require.Equal(t, session.ResultChoiceCommitted, out.Result)
	assert.Equal(t, before, state)
	assert.Equal(t, "scene_2", next.PendingSceneID)

	entered, out := session.Reduce(g, next, session.Event{Kind: session.EventTransitionElapsed})
	require.Equal(t, session.ResultSceneEntered, out.Result)
	assert.True(t, next.Transitioning)
	assert.Equal(t, "scene_2", entered.CurrentSceneID)
	assert.Equal(t, "scene_1", out.PreviousSceneID)
	assert.Empty(t, entered.PendingSceneID)
}

func TestReduce_Table(t *testing.T) {
	g, err := story.Load(testutils.BranchingStory())
	require.NoError(t, err)

	transitioning := domain.NewSessionState(g.ID(), "scene_1")
	transitioning.Transitioning = true
	transitioning.PendingSceneID = "scene_2"

	atEnding := domain.NewSessionState(g.ID(), "ending_good")
	atEnding.AtEnding = true
	atEnding.DiscoveredEndings.Add("ending_good")

	tests := []struct {
		name  string
		state *domain.SessionState
		event session.Event
		want  session.Result
	}{
		{"select while transitioning", transitioning, session.Event{Kind: session.EventSelectChoice, ChoiceID: "left"}, session.ResultIgnored},
		{"select unknown choice", domain.NewSessionState(g.ID(), "scene_1"), session.Event{Kind: session.EventSelectChoice, ChoiceID: "up"}, session.ResultRejected},
		{"select at ending", atEnding, session.Event{Kind: session.EventSelectChoice, ChoiceID: "rest"}, session.ResultRejected},
		{"elapsed without pending", domain.NewSessionState(g.ID(), "scene_1"), session.Event{Kind: session.EventTransitionElapsed}, session.ResultIgnored},
		{"elapsed with pending", transitioning, session.Event{Kind: session.EventTransitionElapsed}, session.ResultSceneEntered},
		{"restart at ending", atEnding, session.Event{Kind: session.EventRestart}, session.ResultRestarted},
		{"restart mid transition", transitioning, session.Event{Kind: session.EventRestart}, session.ResultRestarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.state.Clone()
			next, out := session.Reduce(g, tt.state, tt.event)
			assert.Equal(t, tt.want, out.Result, out.Reason)
			assert.Equal(t, before, tt.state, "input must not change")
			if !out.Result.Changed() {
				assert.Same(t, tt.state, next)
			}
		})
	}
}

func TestReduce_RestartKeepsEndings(t *testing.T) {
	g, err := story.Load(testutils.BranchingStory())
	require.NoError(t, err)

	state := domain.NewSessionState(g.ID(), "ending_bad")
	state.DiscoveredEndings.Add("ending_bad")
	state.TotalChoicesMade = 2
	state.CompletionPercentage = 67
	state.AtEnding = true

	next, out := session.Reduce(g, state, session.Event{Kind: session.EventRestart})
	require.Equal(t, session.ResultRestarted, out.Result)
	assert.Equal(t, "scene_1", out.Scene.ID)
	assert.Zero(t, next.CompletionPercentage)
	assert.Zero(t, next.TotalChoicesMade)
	assert.False(t, next.AtEnding)
	assert.Equal(t, []string{"ending_bad"}, next.DiscoveredEndings.Sorted())
}

func TestReduce_RevisitedEndingIsNotNew(t *testing.T) {
	g, err := story.Load(testutils.BranchingStory())
	require.NoError(t, err)

	state := domain.NewSessionState(g.ID(), "scene_2")
	state.DiscoveredEndings.Add("ending_good")
	state.Transitioning = true
	state.PendingSceneID = "ending_good"

	next, out := session.Reduce(g, state, session.Event{Kind: session.EventTransitionElapsed})
	require.Equal(t, session.ResultSceneEntered, out.Result)
	assert.False(t, out.NewEnding)
	assert.True(t, next.AtEnding)
}

func TestEventAndResultStrings(t *testing.T) {
	assert.Equal(t, "select_choice", session.EventSelectChoice.String())
	assert.Equal(t, "restart", session.EventRestart.String())
	assert.Equal(t, "choice_committed", session.ResultChoiceCommitted.String())
	assert.True(t, session.ResultRestarted.Changed())
	assert.False(t, session.ResultRejected.Changed())
}

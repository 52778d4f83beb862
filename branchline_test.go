package branchline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/branchline/branchline"
	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/adapters/file"
	"github.com/branchline/branchline/pkg/adapters/memory"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lighthouseYAML = `id: lighthouse
title: The Lighthouse
startSceneId: shore
scenes:
  shore:
    title: Shore
    text: A lighthouse blinks in the fog.
    audioRef: https://cdn.example.com/audio/waves.mp3
    choices:
      - id: climb
        text: Climb the tower
        nextSceneId: lamp
  lamp:
    title: Lamp Room
    text: The keeper smiles.
    isEnding: true
    endingType: good
`

func writeStory(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	return dir
}

func TestFacade_Integration(t *testing.T) {
	ctx := context.Background()
	dir := writeStory(t, "lighthouse.yaml", lighthouseYAML)
	progressDir := t.TempDir()
	player := memory.NewPlayer()
	sched := &testutils.ManualScheduler{}

	eng, err := branchline.New(dir,
		branchline.WithStore(file.New(progressDir)),
		branchline.WithAudioPlayer(player),
		branchline.WithSessionOptions(session.WithScheduler(sched.AfterFunc)),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), eng.Name)

	sess, err := eng.Open(ctx, "alice", "lighthouse")
	require.NoError(t, err)
	assert.Equal(t, "Shore", sess.CurrentScene().Title)

	res, err := eng.SelectChoice(ctx, "alice", "lighthouse", "climb")
	require.NoError(t, err)
	assert.Equal(t, session.ResultChoiceCommitted, res)
	assert.True(t, sess.State().Transitioning)

	require.Equal(t, 1, sched.Fire())
	assert.Equal(t, "lamp", sess.State().CurrentSceneID)

	require.NoError(t, eng.Shutdown(ctx))
	assert.Equal(t, []memory.PlayerCall{
		{Op: "play", URL: "https://cdn.example.com/audio/waves.mp3"},
		{Op: "stop"},
	}, player.Calls())

	// A new engine over the same progress directory resumes the play-through.
	again, err := branchline.New(dir, branchline.WithStore(file.New(progressDir)))
	require.NoError(t, err)
	defer again.Shutdown(ctx)

	snap, err := again.Progress(ctx, "alice", "lighthouse")
	require.NoError(t, err)
	assert.Equal(t, "lamp", snap.CurrentSceneID)
	assert.Equal(t, []string{"lamp"}, snap.DiscoveredEndings)
	assert.Equal(t, 100, snap.CompletionPercentage)

	resumed, err := again.Open(ctx, "alice", "lighthouse")
	require.NoError(t, err)
	assert.True(t, resumed.State().AtEnding)
}

func TestNew_RequiresStories(t *testing.T) {
	_, err := branchline.New("")
	assert.Error(t, err)
}

func TestEngine_Inspect(t *testing.T) {
	stories, err := memory.NewStoryRepository(testutils.BranchingStory())
	require.NoError(t, err)
	eng, err := branchline.New("", branchline.WithStories(stories))
	require.NoError(t, err)

	g, err := eng.Inspect(context.Background(), "branching")
	require.NoError(t, err)
	assert.Equal(t, "scene_1", g.StartSceneID())
	assert.Len(t, g.SceneIDs(), 5)

	_, err = eng.Inspect(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)

	_, err = eng.Progress(context.Background(), "nobody", "branching")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestEngine_StrictStories(t *testing.T) {
	stories, err := memory.NewStoryRepository(testutils.CyclicStory())
	require.NoError(t, err)
	ctx := context.Background()

	tolerant, err := branchline.New("", branchline.WithStories(stories))
	require.NoError(t, err)
	_, err = tolerant.Open(ctx, "alice", testutils.CyclicStory().ID)
	assert.NoError(t, err)

	strict, err := branchline.New("", branchline.WithStories(stories), branchline.WithStrictStories())
	require.NoError(t, err)
	_, err = strict.Open(ctx, "alice", testutils.CyclicStory().ID)
	assert.ErrorIs(t, err, story.ErrMalformedStory)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	stories, err := memory.NewStoryRepository(testutils.BranchingStory())
	require.NoError(t, err)
	sched := &testutils.ManualScheduler{}

	var entered, choices []string
	eng, err := branchline.New("",
		branchline.WithStories(stories),
		branchline.WithSessionOptions(session.WithScheduler(sched.AfterFunc)),
		branchline.WithLifecycleHooks(domain.LifecycleHooks{
			OnSceneEnter: func(_ context.Context, e *domain.SceneEvent) { entered = append(entered, e.SceneID) },
		}),
		branchline.WithLifecycleHooks(domain.LifecycleHooks{
			OnChoice: func(_ context.Context, e *domain.ChoiceEvent) { choices = append(choices, e.Record.ChoiceID) },
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	_, err = eng.SelectChoice(ctx, "alice", "branching", "right")
	require.NoError(t, err)
	sched.Fire()

	assert.Equal(t, []string{"scene_1", "scene_3"}, entered)
	assert.Equal(t, []string{"right"}, choices)
}

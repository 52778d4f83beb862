package tui

import (
	"bytes"
	"context"
	"testing"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain(s string) (string, error) { return s, nil }

func TestSceneMarkdown(t *testing.T) {
	def := testutils.BranchingStory()

	t.Run("Decision Scene", func(t *testing.T) {
		state := domain.NewSessionState("branching", "scene_1")
		out := SceneMarkdown(def.Scenes["scene_1"], state)

		assert.Contains(t, out, "# The Fork\n\nThe road splits.\n\n")
		assert.Contains(t, out, "1. Go left\n")
		assert.Contains(t, out, "2. Go right _(It looks dark.)_\n")
		assert.Contains(t, out, "Progress: 0% · choices made: 0 · endings found: 0")
		assert.NotContains(t, out, "The End")
	})

	t.Run("Ending Scene", func(t *testing.T) {
		out := SceneMarkdown(def.Scenes["ending_bad"], nil)
		assert.Contains(t, out, "**The End** (bad ending)")
		assert.NotContains(t, out, "Progress")
	})

	t.Run("Untitled Scene", func(t *testing.T) {
		out := SceneMarkdown(domain.Scene{ID: "hall"}, nil)
		assert.Contains(t, out, "# hall\n")
	})
}

func TestRenderer_Output(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, WithMarkdown(plain), WithProfile(termenv.Ascii))

	require.NoError(t, r.Scene(domain.Scene{ID: "a", Title: "A"}, nil))
	r.Audio(domain.AudioCommand{Type: domain.AudioPlayTrack, URL: "https://cdn/x.mp3"})
	r.Audio(domain.AudioCommand{Type: domain.AudioStop})
	r.EndingDiscovered("ending_good", domain.EndingGood)
	r.Notice("saved %d", 1)
	r.Prompt(false)

	out := buf.String()
	assert.Contains(t, out, "# A")
	assert.Contains(t, out, "♪ now playing https://cdn/x.mp3\n")
	assert.Contains(t, out, "♪ silence\n")
	assert.Contains(t, out, "★ New ending discovered: ending_good (good)\n")
	assert.Contains(t, out, "saved 1\n")
	assert.Contains(t, out, "(r)estart, (q)uit > ")
	assert.NotContains(t, out, "\x1b[", "ascii profile emits no escape codes")
}

func TestAudioPlayer(t *testing.T) {
	var buf bytes.Buffer
	p := &AudioPlayer{Renderer: NewRenderer(&buf, WithMarkdown(plain), WithProfile(termenv.Ascii))}

	require.NoError(t, p.Play(context.Background(), "u.mp3"))
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, "♪ now playing u.mp3\n♪ silence\n", buf.String())
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}

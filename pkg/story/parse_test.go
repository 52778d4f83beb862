package story_test

import (
	"encoding/json"
	"testing"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlStory = `
id: lighthouse
startSceneId: shore
scenes:
  shore:
    title: Shore
    text: Waves crash.
    audioRef: waves.ogg
    choices:
      - id: climb
        text: Climb the lighthouse
        nextSceneId: top
        consequenceHint: The stairs creak.
  top:
    title: Top
    text: The lamp is lit.
    isEnding: true
    endingType: good
`

func TestParse_YAML(t *testing.T) {
	def, err := story.Parse([]byte(yamlStory))
	require.NoError(t, err)

	assert.Equal(t, "lighthouse", def.ID)
	assert.Equal(t, "shore", def.StartSceneID)
	require.Len(t, def.Scenes["shore"].Choices, 1)
	assert.Equal(t, "The stairs creak.", def.Scenes["shore"].Choices[0].ConsequenceHint)
	assert.Equal(t, domain.EndingGood, def.Scenes["top"].EndingType)
	assert.Nil(t, def.TotalEndings)
}

func TestParse_JSONWireFormat(t *testing.T) {
	data, err := json.Marshal(testutils.BranchingStory())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startSceneId":"scene_1"`)
	assert.Contains(t, string(data), `"nextSceneId":"scene_2"`)

	g, err := story.LoadBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NonEndingSceneCount())
}

func TestParse_Empty(t *testing.T) {
	_, err := story.Parse([]byte("  \n"))
	assert.Error(t, err)

	_, err = story.LoadBytes(nil)
	assert.ErrorIs(t, err, story.ErrMalformedStory)
}

func TestDecode_GenericMap(t *testing.T) {
	raw := map[string]any{
		"id":           "map-story",
		"startSceneId": "a",
		"totalEndings": float64(1),
		"scenes": map[string]any{
			"a": map[string]any{
				"title": "A",
				"choices": []any{
					map[string]any{"id": "go", "text": "Go", "nextSceneId": "b"},
				},
			},
			"b": map[string]any{"title": "B", "isEnding": true, "endingType": "secret"},
		},
	}

	def, err := story.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, def.TotalEndings)
	assert.Equal(t, 1, *def.TotalEndings)

	g, err := story.Load(def, story.WithStrict())
	require.NoError(t, err)
	assert.Equal(t, 1, g.TotalEndings())
	assert.True(t, g.IsEnding("b"))
}

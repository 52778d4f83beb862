package loam

// SceneMetadata is the frontmatter of a scene document.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
// The document body is the scene text.
type SceneMetadata struct {
	// ID overrides the scene id implied by the file name.
	ID         string `json:"id" mapstructure:"id"`
	Title      string `json:"title" mapstructure:"title"`
	AudioRef   string `json:"audio_ref" mapstructure:"audio_ref"`
	IsEnding   bool   `json:"is_ending" mapstructure:"is_ending"`
	EndingType string `json:"ending_type" mapstructure:"ending_type"`

	// Start marks the entry scene of the story.
	Start bool `json:"start" mapstructure:"start"`
	// StoryTitle may be set on any scene (usually the start one).
	StoryTitle string `json:"story_title" mapstructure:"story_title"`

	Choices []ChoiceMetadata `json:"choices" mapstructure:"choices"`
}

// ChoiceMetadata is one choice of a scene.
type ChoiceMetadata struct {
	ID   string `json:"id" mapstructure:"id"`
	Text string `json:"text" mapstructure:"text"`
	// To is the next scene id, relative to the story.
	To   string `json:"to" mapstructure:"to"`
	Hint string `json:"hint" mapstructure:"hint"`
}

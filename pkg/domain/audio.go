package domain

// AudioCommandType is the kind of instruction sent to the audio subsystem.
type AudioCommandType string

const (
	// AudioPlayTrack asks the audio subsystem to load and play URL.
	AudioPlayTrack AudioCommandType = "PLAY_TRACK"
	// AudioStop asks the audio subsystem to stop playback.
	AudioStop AudioCommandType = "STOP"
)

// AudioCommand is emitted once per completed scene transition.
type AudioCommand struct {
	Type    AudioCommandType `json:"type"`
	URL     string           `json:"url,omitempty"`
	SceneID string           `json:"sceneId"`
}

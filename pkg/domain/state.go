package domain

import (
	"strings"
	"time"
)

// ChoiceRecord is one committed transition. History is append-only.
type ChoiceRecord struct {
	FromSceneID string    `json:"fromSceneId"`
	ChoiceID    string    `json:"choiceId"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionState is the mutable state of a single play-through.
type SessionState struct {
	StoryID              string         `json:"storyId"`
	CurrentSceneID       string         `json:"currentSceneId"`
	ChoiceHistory        []ChoiceRecord `json:"choiceHistory"`
	VisitedSceneIDs      SceneSet       `json:"visitedSceneIds"`
	DiscoveredEndings    SceneSet       `json:"discoveredEndings"`
	TotalChoicesMade     int            `json:"totalChoicesMade"`
	CompletionPercentage int            `json:"completionPercentage"`
	Transitioning        bool           `json:"transitioning"`

	// AtEnding marks the terminal sub-state; the session still accepts a restart.
	AtEnding bool `json:"atEnding"`

	// PendingSceneID is the target of the transition in flight, if any.
	PendingSceneID string `json:"pendingSceneId,omitempty"`
}

// NewSessionState creates a fresh play-through positioned at startSceneID.
func NewSessionState(storyID, startSceneID string) *SessionState {
	return &SessionState{
		StoryID:           storyID,
		CurrentSceneID:    startSceneID,
		ChoiceHistory:     []ChoiceRecord{},
		VisitedSceneIDs:   NewSceneSet(startSceneID),
		DiscoveredEndings: NewSceneSet(),
	}
}

// Clone returns a deep copy that shares no mutable data with s.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.ChoiceHistory = append([]ChoiceRecord{}, s.ChoiceHistory...)
	c.VisitedSceneIDs = s.VisitedSceneIDs.Clone()
	c.DiscoveredEndings = s.DiscoveredEndings.Clone()
	return &c
}

// ProgressSnapshot is the persisted projection of a session.
// Field names are the storage format and must not change.
type ProgressSnapshot struct {
	CurrentSceneID       string         `json:"currentSceneId"`
	ChoiceHistory        []ChoiceRecord `json:"choiceHistory"`
	DiscoveredEndings    []string       `json:"discoveredEndings"`
	CompletionPercentage int            `json:"completionPercentage"`
	TotalChoicesMade     int            `json:"totalChoicesMade"`
}

// SnapshotKey identifies a persisted snapshot.
type SnapshotKey struct {
	UserKey string `json:"userKey"`
	StoryID string `json:"storyId"`
}

// String renders the key as "user/story", used by stores as a flat id.
func (k SnapshotKey) String() string {
	return k.UserKey + "/" + k.StoryID
}

// ParseSnapshotKey reverses SnapshotKey.String. Story ids never contain a slash,
// so the last one separates the parts.
func ParseSnapshotKey(s string) (SnapshotKey, bool) {
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return SnapshotKey{}, false
	}
	return SnapshotKey{UserKey: s[:i], StoryID: s[i+1:]}, true
}

package domain

// StateDiff represents the changes between two session states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// StoryID is always present to identify the target.
	StoryID string `json:"story_id"`

	CurrentSceneID *string `json:"current_scene_id,omitempty"`
	Transitioning  *bool   `json:"transitioning,omitempty"`
	AtEnding       *bool   `json:"at_ending,omitempty"`
	Completion     *int    `json:"completion_percentage,omitempty"`
	TotalChoices   *int    `json:"total_choices_made,omitempty"`

	// HistoryAppended contains only records appended since the old state.
	// Reset is set when history shrank (a restart) and clients must drop theirs.
	HistoryAppended []ChoiceRecord `json:"history_appended,omitempty"`
	HistoryReset    bool           `json:"history_reset,omitempty"`

	// NewEndings lists endings discovered since the old state.
	NewEndings []string `json:"new_endings,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{StoryID: newState.StoryID}

	if oldState == nil || oldState.CurrentSceneID != newState.CurrentSceneID {
		diff.CurrentSceneID = &newState.CurrentSceneID
	}
	if oldState == nil || oldState.Transitioning != newState.Transitioning {
		diff.Transitioning = &newState.Transitioning
	}
	if oldState == nil || oldState.AtEnding != newState.AtEnding {
		diff.AtEnding = &newState.AtEnding
	}
	if oldState == nil || oldState.CompletionPercentage != newState.CompletionPercentage {
		diff.Completion = &newState.CompletionPercentage
	}
	if oldState == nil || oldState.TotalChoicesMade != newState.TotalChoicesMade {
		diff.TotalChoices = &newState.TotalChoicesMade
	}

	diff.HistoryAppended, diff.HistoryReset = diffHistory(oldState, newState)
	diff.NewEndings = diffEndings(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// diffHistory assumes append-only history between restarts.
func diffHistory(old, new *SessionState) ([]ChoiceRecord, bool) {
	if old == nil {
		if len(new.ChoiceHistory) == 0 {
			return nil, false
		}
		return new.ChoiceHistory, false
	}

	oldLen := len(old.ChoiceHistory)
	newLen := len(new.ChoiceHistory)
	switch {
	case newLen > oldLen:
		return new.ChoiceHistory[oldLen:], false
	case newLen < oldLen:
		if newLen == 0 {
			return nil, true
		}
		return new.ChoiceHistory, true
	}
	return nil, false
}

func diffEndings(old, new *SessionState) []string {
	var added []string
	for _, id := range new.DiscoveredEndings.Sorted() {
		if old == nil || !old.DiscoveredEndings.Has(id) {
			added = append(added, id)
		}
	}
	return added
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentSceneID == nil &&
		d.Transitioning == nil &&
		d.AtEnding == nil &&
		d.Completion == nil &&
		d.TotalChoices == nil &&
		len(d.HistoryAppended) == 0 &&
		!d.HistoryReset &&
		len(d.NewEndings) == 0
}

package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSceneEnter       EventType = "scene_enter"
	EventSceneLeave       EventType = "scene_leave"
	EventChoice           EventType = "choice"
	EventEndingDiscovered EventType = "ending_discovered"
	EventRestart          EventType = "restart"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	StoryID   string    `json:"story_id"`
}

// SceneEvent represents entry into or exit from a scene.
type SceneEvent struct {
	EventBase
	SceneID    string     `json:"scene_id"`
	AudioRef   string     `json:"audio_ref,omitempty"`
	IsEnding   bool       `json:"is_ending,omitempty"`
	EndingType EndingType `json:"ending_type,omitempty"`
	Completion int        `json:"completion"`
}

// ChoiceEvent represents a committed choice (phase one of a transition).
type ChoiceEvent struct {
	EventBase
	Record      ChoiceRecord `json:"record"`
	NextSceneID string       `json:"next_scene_id"`
}

// LifecycleHooks defines callbacks for session observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnSceneEnter       func(context.Context, *SceneEvent)
	OnSceneLeave       func(context.Context, *SceneEvent)
	OnChoice           func(context.Context, *ChoiceEvent)
	OnEndingDiscovered func(context.Context, *SceneEvent)
	OnRestart          func(context.Context, *SceneEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSceneEnter:       chain(h.OnSceneEnter, other.OnSceneEnter),
		OnSceneLeave:       chain(h.OnSceneLeave, other.OnSceneLeave),
		OnChoice:           chain(h.OnChoice, other.OnChoice),
		OnEndingDiscovered: chain(h.OnEndingDiscovered, other.OnEndingDiscovered),
		OnRestart:          chain(h.OnRestart, other.OnRestart),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

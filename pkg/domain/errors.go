package domain

import "errors"

// ErrStoryNotFound is returned when the content boundary has no story for an id.
var ErrStoryNotFound = errors.New("story not found")

// ErrSnapshotNotFound is returned when no progress has been stored for a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSceneNotFound is returned when a scene id does not resolve in a story.
var ErrSceneNotFound = errors.New("scene not found")

// ErrSessionClosed is returned when operating on a session that was discarded.
var ErrSessionClosed = errors.New("session closed")

// ErrSessionNotFound is returned when a player has no open session for a story.
var ErrSessionNotFound = errors.New("session not found")

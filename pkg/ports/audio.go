package ports

import "context"

// AudioPlayer is the host's audio backend.
type AudioPlayer interface {
	// Play starts the track at url, replacing whatever is playing.
	Play(ctx context.Context, url string) error
	// Stop silences playback.
	Stop(ctx context.Context) error
}

package tui

import (
	"context"

	"github.com/branchline/branchline/pkg/domain"
)

// AudioPlayer prints audio cues instead of playing them. It satisfies ports.AudioPlayer.
type AudioPlayer struct {
	Renderer *Renderer
}

// Play announces url.
func (p *AudioPlayer) Play(_ context.Context, url string) error {
	p.Renderer.Audio(domain.AudioCommand{Type: domain.AudioPlayTrack, URL: url})
	return nil
}

// Stop announces silence.
func (p *AudioPlayer) Stop(context.Context) error {
	p.Renderer.Audio(domain.AudioCommand{Type: domain.AudioStop})
	return nil
}

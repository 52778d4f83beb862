package memory

import (
	"context"
	"sync"
)

// PlayerCall is one call recorded by Player.
type PlayerCall struct {
	Op  string // "play" or "stop"
	URL string
}

// Player implements ports.AudioPlayer by recording calls.
// Useful for tests and for hosts without an audio backend.
type Player struct {
	mu    sync.Mutex
	calls []PlayerCall
	err   error
}

// NewPlayer creates a recording player.
func NewPlayer() *Player {
	return &Player{}
}

// FailWith makes subsequent calls return err.
func (p *Player) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Play records a play call.
func (p *Player) Play(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, PlayerCall{Op: "play", URL: url})
	return p.err
}

// Stop records a stop call.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, PlayerCall{Op: "stop"})
	return p.err
}

// Calls returns the recorded calls in order.
func (p *Player) Calls() []PlayerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayerCall(nil), p.calls...)
}

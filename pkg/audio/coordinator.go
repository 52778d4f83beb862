package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
)

const defaultQueueSize = 16

// CueFor returns the command due when scene is entered: play its track, or stop
// playback when it has none.
func CueFor(scene domain.Scene) domain.AudioCommand {
	if scene.AudioRef == "" {
		return domain.AudioCommand{Type: domain.AudioStop, SceneID: scene.ID}
	}
	return domain.AudioCommand{Type: domain.AudioPlayTrack, URL: scene.AudioRef, SceneID: scene.ID}
}

// Coordinator turns scene entries into player commands.
// Commands are delivered in order by a single worker; when the player falls behind
// the oldest undelivered command is dropped, since only the latest cue matters.
type Coordinator struct {
	player ports.AudioPlayer
	logger *slog.Logger

	mu      sync.Mutex
	queue   chan queued
	closed  bool
	dropped int
	last    domain.AudioCommand

	done chan struct{}
}

type queued struct {
	ctx context.Context
	cmd domain.AudioCommand
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithQueueSize sets how many commands may wait for the player.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queue = make(chan queued, n)
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator starts a coordinator delivering to player.
// Close must be called to stop its worker.
func NewCoordinator(player ports.AudioPlayer, opts ...Option) *Coordinator {
	c := &Coordinator{
		player: player,
		logger: logging.NewNop(),
		queue:  make(chan queued, defaultQueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

// SceneEntered queues the cue for scene. It never blocks.
func (c *Coordinator) SceneEntered(ctx context.Context, scene domain.Scene) {
	c.Dispatch(ctx, CueFor(scene))
}

// Dispatch queues cmd for the player. It never blocks.
func (c *Coordinator) Dispatch(ctx context.Context, cmd domain.AudioCommand) {
	item := queued{ctx: context.WithoutCancel(ctx), cmd: cmd}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.last = cmd

	select {
	case c.queue <- item:
		return
	default:
	}

	// Full: make room by discarding the oldest command.
	select {
	case old := <-c.queue:
		c.dropped++
		c.logger.Debug("Audio command dropped", "scene_id", old.cmd.SceneID, "type", old.cmd.Type)
	default:
	}
	select {
	case c.queue <- item:
	default:
		c.dropped++
	}
}

// Hooks returns lifecycle hooks that feed scene entries into the coordinator.
func (c *Coordinator) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSceneEnter: func(ctx context.Context, e *domain.SceneEvent) {
			c.SceneEntered(ctx, domain.Scene{ID: e.SceneID, AudioRef: e.AudioRef})
		},
	}
}

// Last returns the most recently dispatched command.
func (c *Coordinator) Last() (domain.AudioCommand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.last.Type != ""
}

// Dropped reports how many commands were discarded because the player fell behind.
func (c *Coordinator) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops accepting commands, delivers the queued ones and stops the worker.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	<-c.done
}

func (c *Coordinator) run() {
	defer close(c.done)
	for item := range c.queue {
		c.deliver(item.ctx, item.cmd)
	}
}

func (c *Coordinator) deliver(ctx context.Context, cmd domain.AudioCommand) {
	var err error
	switch cmd.Type {
	case domain.AudioPlayTrack:
		err = c.player.Play(ctx, cmd.URL)
	case domain.AudioStop:
		err = c.player.Stop(ctx)
	default:
		c.logger.Warn("Unknown audio command", "type", cmd.Type)
		return
	}
	if err != nil {
		c.logger.Warn("Audio command failed",
			"scene_id", cmd.SceneID,
			"type", cmd.Type,
			"url", cmd.URL,
			"err", err,
		)
	}
}

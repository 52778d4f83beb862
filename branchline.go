package branchline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/adapters/file"
	"github.com/branchline/branchline/pkg/adapters/memory"
	"github.com/branchline/branchline/pkg/audio"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
)

// Version is the release of the engine and its tools.
var Version = "0.4.0"

// Engine is the high-level entry point for the branchline library.
// It wires a story source, a snapshot store and an optional audio player into
// a session manager.
type Engine struct {
	manager *session.Manager
	audio   *audio.Coordinator

	stories  ports.StoryRepository
	store    ports.SnapshotStore
	player   ports.AudioPlayer
	hooks    domain.LifecycleHooks
	delay    *time.Duration
	strict   bool
	sessOpts []session.Option
	mgrOpts  []session.ManagerOption
	logger   *slog.Logger
	Name     string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStories injects the content boundary, bypassing the default story directory.
func WithStories(repo ports.StoryRepository) Option {
	return func(e *Engine) {
		e.stories = repo
	}
}

// WithStore sets where progress is persisted. Defaults to memory.
func WithStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithAudioPlayer routes scene audio cues to player.
func WithAudioPlayer(player ports.AudioPlayer) Option {
	return func(e *Engine) {
		e.player = player
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithTransitionDelay sets the pause between a choice and the next scene.
func WithTransitionDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = &d
	}
}

// WithStrictStories rejects stories that fail validation when they are opened.
func WithStrictStories() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// WithSessionOptions passes extra options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) {
		e.sessOpts = append(e.sessOpts, opts...)
	}
}

// WithManagerOptions passes extra options to the session manager.
func WithManagerOptions(opts ...session.ManagerOption) Option {
	return func(e *Engine) {
		e.mgrOpts = append(e.mgrOpts, opts...)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a new Engine.
// By default stories are read from the files in storyDir.
// If WithStories is provided, storyDir can be empty.
func New(storyDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.stories == nil {
		if storyDir == "" {
			return nil, fmt.Errorf("storyDir is required when no story repository is provided")
		}
		absPath, err := filepath.Abs(storyDir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)
		eng.stories = file.NewStoryRepository(absPath)
	} else if storyDir != "" {
		eng.Name = filepath.Base(storyDir)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("library", eng.Name)
	}

	hooks := eng.hooks
	if eng.player != nil {
		eng.audio = audio.NewCoordinator(eng.player, audio.WithLogger(eng.logger))
		hooks = eng.audio.Hooks().Merge(hooks)
	}

	sessOpts := []session.Option{session.WithLifecycleHooks(hooks)}
	if eng.delay != nil {
		sessOpts = append(sessOpts, session.WithTransitionDelay(*eng.delay))
	}
	sessOpts = append(sessOpts, eng.sessOpts...)

	mgrOpts := []session.ManagerOption{
		session.WithManagerLogger(eng.logger),
		session.WithSessionOptions(sessOpts...),
	}
	if eng.strict {
		mgrOpts = append(mgrOpts, session.WithStoryLoadOptions(story.WithStrict()))
	}
	mgrOpts = append(mgrOpts, eng.mgrOpts...)

	eng.manager = session.NewManager(eng.stories, eng.store, mgrOpts...)
	return eng, nil
}

// Open starts or resumes userKey's play-through of storyID.
func (e *Engine) Open(ctx context.Context, userKey, storyID string) (*session.Session, error) {
	return e.manager.Open(ctx, userKey, storyID)
}

// SelectChoice takes a choice in the player's open session.
func (e *Engine) SelectChoice(ctx context.Context, userKey, storyID, choiceID string) (session.Result, error) {
	return e.manager.SelectChoice(ctx, userKey, storyID, choiceID)
}

// Restart returns the player's open session to its start scene.
func (e *Engine) Restart(ctx context.Context, userKey, storyID string) (session.Result, error) {
	return e.manager.Restart(ctx, userKey, storyID)
}

// Progress returns the stored progress of userKey in storyID.
func (e *Engine) Progress(ctx context.Context, userKey, storyID string) (*domain.ProgressSnapshot, error) {
	if s, ok := e.manager.Get(userKey, storyID); ok {
		return s.Snapshot(), nil
	}
	return e.store.Load(ctx, domain.SnapshotKey{UserKey: userKey, StoryID: storyID})
}

// Inspect loads a story graph without opening a session.
func (e *Engine) Inspect(ctx context.Context, storyID string) (*story.Graph, error) {
	def, err := e.stories.FetchStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return story.Load(*def)
}

// Manager exposes the underlying session manager, e.g. for the HTTP adapter.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Stories returns the content boundary used by the engine.
func (e *Engine) Stories() ports.StoryRepository {
	return e.stories
}

// Shutdown closes all sessions, waits for pending saves and stops the audio worker.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.manager.Shutdown(ctx)
	if e.audio != nil {
		e.audio.Close()
	}
	return err
}

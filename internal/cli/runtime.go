package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/branchline/branchline/internal/config"
	"github.com/branchline/branchline/pkg/adapters/cache"
	"github.com/branchline/branchline/pkg/adapters/content"
	"github.com/branchline/branchline/pkg/adapters/file"
	loamAdapter "github.com/branchline/branchline/pkg/adapters/loam"
	"github.com/branchline/branchline/pkg/adapters/memory"
	redisAdapter "github.com/branchline/branchline/pkg/adapters/redis"
	"github.com/branchline/branchline/pkg/adapters/sqlite"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
)

// Runtime holds the adapters selected by the configuration.
type Runtime struct {
	Config  config.Config
	Logger  *slog.Logger
	Stories ports.StoryRepository
	Store   ports.SnapshotStore
	Locker  ports.DistributedLocker

	closers []func() error
}

// Build wires the story source and snapshot backend named by cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	stories, err := buildStories(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Stories = stories

	if err := rt.buildStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	logger.Debug("Runtime ready",
		"story_source", cfg.StorySource,
		"snapshot_backend", cfg.SnapshotBackend,
		"cache_size", cfg.StoryCacheSize,
	)
	return rt, nil
}

func buildStories(cfg config.Config, logger *slog.Logger) (ports.StoryRepository, error) {
	var repo ports.StoryRepository
	switch cfg.StorySource {
	case config.SourceFile:
		repo = file.NewStoryRepository(cfg.StoryDir)
	case config.SourceLoam:
		lr, err := loamAdapter.Open(cfg.StoryDir)
		if err != nil {
			return nil, err
		}
		repo = lr
	case config.SourceHTTP:
		opts := []content.Option{content.WithLogger(logger)}
		if cfg.ContentToken != "" {
			opts = append(opts, content.WithToken(cfg.ContentToken))
		}
		repo = content.NewClient(cfg.ContentURL, opts...)
	default:
		return nil, fmt.Errorf("unknown story source %q", cfg.StorySource)
	}

	if cfg.StoryCacheSize <= 0 {
		return repo, nil
	}
	return cache.NewStoryRepository(repo, cfg.StoryCacheSize, cache.WithLogger(logger))
}

func (rt *Runtime) buildStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.SnapshotBackend {
	case config.BackendMemory:
		rt.Store = memory.NewStore()
	case config.BackendFile:
		rt.Store = file.New(cfg.ProgressDir)
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		rt.Store = store
		rt.closers = append(rt.closers, store.Close)
	case config.BackendRedis:
		opts := []redisAdapter.Option{redisAdapter.WithPrefix(cfg.Redis.Prefix + "progress:")}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redisAdapter.WithTTL(cfg.Redis.TTL))
		}
		store := redisAdapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		rt.closers = append(rt.closers, store.Close)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		rt.Store = store
		rt.Locker = redisAdapter.NewLocker(store.Client(), cfg.Redis.Prefix)
	default:
		return fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
	return nil
}

// NewManager creates a session manager over the runtime adapters.
// extra options are applied after the configured ones.
func (rt *Runtime) NewManager(extra ...session.ManagerOption) *session.Manager {
	opts := []session.ManagerOption{
		session.WithManagerLogger(rt.Logger),
		session.WithSessionOptions(session.WithTransitionDelay(rt.Config.TransitionDelay)),
	}
	if rt.Config.StrictStories {
		opts = append(opts, session.WithStoryLoadOptions(story.WithStrict()))
	}
	if rt.Locker != nil {
		opts = append(opts, session.WithLocker(rt.Locker, rt.Config.Redis.LockTTL))
	}
	return session.NewManager(rt.Stories, rt.Store, append(opts, extra...)...)
}

// LoadGraph fetches and loads one story.
func (rt *Runtime) LoadGraph(ctx context.Context, storyID string, opts ...story.LoadOption) (*story.Graph, error) {
	def, err := rt.Stories.FetchStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return story.Load(*def, opts...)
}

// Close releases backend connections.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

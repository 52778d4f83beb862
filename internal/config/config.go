// Package config loads runtime settings from BRANCHLINE_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "BRANCHLINE_"

// Story sources.
const (
	SourceFile = "file"
	SourceLoam = "loam"
	SourceHTTP = "http"
)

// Snapshot backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds every tunable of the CLI and server.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	TransitionDelay time.Duration `env:"TRANSITION_DELAY" envDefault:"600ms"`

	StorySource    string `env:"STORY_SOURCE" envDefault:"file"`
	StoryDir       string `env:"STORY_DIR" envDefault:"stories"`
	ContentURL     string `env:"CONTENT_URL"`
	ContentToken   string `env:"CONTENT_TOKEN"`
	StoryCacheSize int    `env:"STORY_CACHE_SIZE" envDefault:"64"`
	StrictStories  bool   `env:"STRICT_STORIES" envDefault:"false"`

	SnapshotBackend string      `env:"SNAPSHOT_BACKEND" envDefault:"file"`
	ProgressDir     string      `env:"PROGRESS_DIR" envDefault:".branchline/progress"`
	SQLitePath      string      `env:"SQLITE_PATH" envDefault:".branchline/progress.db"`
	Redis           RedisConfig `envPrefix:"REDIS_"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Metrics  bool   `env:"METRICS" envDefault:"true"`
}

// RedisConfig configures the Redis snapshot backend and distributed lock.
type RedisConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	Prefix   string        `env:"PREFIX" envDefault:"branchline:"`
	TTL      time.Duration `env:"TTL" envDefault:"0s"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"30s"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StorySource {
	case SourceFile, SourceLoam:
		if c.StoryDir == "" {
			return fmt.Errorf("story dir is required for source %q", c.StorySource)
		}
	case SourceHTTP:
		if c.ContentURL == "" {
			return fmt.Errorf("content url is required for source %q", c.StorySource)
		}
	default:
		return fmt.Errorf("unknown story source %q", c.StorySource)
	}

	switch c.SnapshotBackend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	if c.TransitionDelay < 0 {
		return fmt.Errorf("transition delay must not be negative")
	}
	return nil
}

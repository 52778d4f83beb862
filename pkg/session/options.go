package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/branchline/branchline/pkg/domain"
)

// DefaultTransitionDelay is the pause between committing a choice and entering
// the next scene. It matches the presentation's transition animation.
const DefaultTransitionDelay = 600 * time.Millisecond

// Scheduler runs fn once after d and returns a function that cancels it.
// The cancel function reports whether the call was prevented.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

// TimerScheduler schedules callbacks on runtime timers.
func TimerScheduler(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// CommitFunc receives a copy of the state after every committed scene change or restart.
// Revision increases with each commit of the same session.
type CommitFunc func(ctx context.Context, state *domain.SessionState, revision uint64)

// Option configures a Session.
type Option func(*Session)

// WithTransitionDelay overrides DefaultTransitionDelay.
func WithTransitionDelay(d time.Duration) Option {
	return func(s *Session) {
		s.delay = d
	}
}

// WithScheduler replaces the timer used for the delayed phase.
func WithScheduler(sched Scheduler) Option {
	return func(s *Session) {
		s.schedule = sched
	}
}

// WithClock overrides time.Now for choice timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithLifecycleHooks registers observability hooks. Hooks run outside the session lock.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Session) {
		s.hooks = s.hooks.Merge(hooks)
	}
}

// WithCommitFunc registers a listener for committed state (e.g. persistence).
func WithCommitFunc(fn CommitFunc) Option {
	return func(s *Session) {
		s.commits = append(s.commits, fn)
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

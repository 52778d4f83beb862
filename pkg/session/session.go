package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/progress"
	"github.com/branchline/branchline/pkg/story"
)

// Session is one play-through of a story: the narrative state machine.
//
// A choice is applied in two phases. SelectChoice records it immediately and
// marks the session as transitioning; after the transition delay the pending
// scene becomes current. While transitioning, further choices are ignored.
// Every restart, re-initialization or close bumps a transition token so a
// delayed phase scheduled before it is discarded instead of applied.
//
// Safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	graph    *story.Graph
	state    *domain.SessionState
	token    uint64
	revision uint64
	cancel   func() bool
	closed   bool

	delay    time.Duration
	schedule Scheduler
	now      func() time.Time
	hooks    domain.LifecycleHooks
	commits  []CommitFunc
	logger   *slog.Logger
}

// New creates a session for g, seeded from snap when it is non-nil.
// The entry scene is announced to hooks as if it had just been entered.
func New(ctx context.Context, g *story.Graph, snap *domain.ProgressSnapshot, opts ...Option) *Session {
	s := &Session{
		delay:    DefaultTransitionDelay,
		schedule: TimerScheduler,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Initialize(ctx, g, snap)
	return s
}

// Initialize (re)loads a story into the session, discarding any pending transition.
// A snapshot that no longer matches the story is applied as far as possible.
func (s *Session) Initialize(ctx context.Context, g *story.Graph, snap *domain.ProgressSnapshot) {
	state, drift := progress.Decode(snap, g)
	if drift != nil {
		s.logger.Warn("Snapshot drifted from story content",
			"story_id", g.ID(),
			"stale_scene_id", drift.StaleSceneID,
			"dropped_endings", drift.DroppedEndings,
			"unresolved_records", drift.UnresolvedRecords,
		)
	}

	s.mu.Lock()
	s.invalidateLocked()
	s.graph = g
	s.state = state
	s.closed = false
	scene, _ := g.Resolve(state.CurrentSceneID)
	s.mu.Unlock()

	s.logger.Debug("Session initialized",
		"story_id", g.ID(),
		"scene_id", scene.ID,
		"restored", snap != nil,
	)
	s.emitEnter(ctx, state, scene)
}

// SelectChoice commits a choice on the current scene and schedules the scene change.
// It is a no-op while a transition is pending, and for choices that are unknown or
// lead to a missing scene.
func (s *Session) SelectChoice(ctx context.Context, choiceID string) Result {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ResultIgnored
	}

	next, out := Reduce(s.graph, s.state, Event{Kind: EventSelectChoice, ChoiceID: choiceID, At: s.now()})
	s.state = next

	if out.Result != ResultChoiceCommitted {
		storyID, sceneID := s.graph.ID(), s.state.CurrentSceneID
		s.mu.Unlock()
		s.logRejection(out, storyID, sceneID, choiceID)
		return out.Result
	}

	s.token++
	token := s.token
	delay := s.delay
	storyID := s.graph.ID()
	s.mu.Unlock()

	s.logger.Debug("Choice committed",
		"story_id", storyID,
		"from_scene_id", out.Record.FromSceneID,
		"choice_id", out.Record.ChoiceID,
		"next_scene_id", out.NextSceneID,
	)
	if s.hooks.OnChoice != nil {
		s.hooks.OnChoice(ctx, &domain.ChoiceEvent{
			EventBase:   domain.EventBase{Timestamp: out.Record.Timestamp, Type: domain.EventChoice, StoryID: storyID},
			Record:      *out.Record,
			NextSceneID: out.NextSceneID,
		})
	}

	phaseCtx := context.WithoutCancel(ctx)
	cancel := s.schedule(delay, func() {
		s.completeTransition(phaseCtx, token)
	})

	s.mu.Lock()
	if s.token == token && s.state.Transitioning {
		s.cancel = cancel
	}
	s.mu.Unlock()

	return out.Result
}

// completeTransition runs the delayed phase scheduled under token.
func (s *Session) completeTransition(ctx context.Context, token uint64) {
	s.mu.Lock()
	if s.closed || token != s.token {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale transition", "token", token)
		return
	}

	next, out := Reduce(s.graph, s.state, Event{Kind: EventTransitionElapsed})
	s.state = next
	s.cancel = nil
	storyID, sceneID := s.graph.ID(), next.CurrentSceneID

	if out.Result != ResultSceneEntered {
		s.mu.Unlock()
		s.logRejection(out, storyID, sceneID, "")
		return
	}

	s.revision++
	rev := s.revision
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.Debug("Scene entered",
		"story_id", storyID,
		"scene_id", out.Scene.ID,
		"completion", snapshot.CompletionPercentage,
	)

	s.emitLeave(ctx, snapshot, out.PreviousSceneID)
	s.emitEnter(ctx, snapshot, *out.Scene)
	if out.NewEnding && s.hooks.OnEndingDiscovered != nil {
		s.hooks.OnEndingDiscovered(ctx, s.sceneEvent(domain.EventEndingDiscovered, snapshot, *out.Scene))
	}
	s.commit(ctx, snapshot, rev)
}

// Restart returns to the start scene. Discovered endings survive; everything else
// resets. A pending transition is cancelled.
func (s *Session) Restart(ctx context.Context) Result {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ResultIgnored
	}
	s.invalidateLocked()

	next, out := Reduce(s.graph, s.state, Event{Kind: EventRestart})
	s.state = next
	storyID, sceneID := s.graph.ID(), next.CurrentSceneID

	if out.Result != ResultRestarted {
		s.mu.Unlock()
		s.logRejection(out, storyID, sceneID, "")
		return out.Result
	}

	s.revision++
	rev := s.revision
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.Debug("Session restarted", "story_id", storyID, "endings", snapshot.DiscoveredEndings.Len())

	if s.hooks.OnRestart != nil {
		s.hooks.OnRestart(ctx, s.sceneEvent(domain.EventRestart, snapshot, *out.Scene))
	}
	s.emitEnter(ctx, snapshot, *out.Scene)
	s.commit(ctx, snapshot, rev)
	return out.Result
}

// Close discards the session and any pending transition. Further operations are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// State returns a copy of the current session state.
func (s *Session) State() *domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Snapshot returns the persistable projection of the current state.
func (s *Session) Snapshot() *domain.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.Encode(s.state)
}

// CurrentScene returns the scene currently displayed.
func (s *Session) CurrentScene() domain.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, _ := s.graph.Resolve(s.state.CurrentSceneID)
	return scene
}

// View is a consistent reading of a session: the displayed scene, the state
// and its snapshot, all taken under one lock.
type View struct {
	Scene    domain.Scene
	State    *domain.SessionState
	Progress *domain.ProgressSnapshot
}

// View returns the scene, state and snapshot as of the same instant.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, _ := s.graph.Resolve(s.state.CurrentSceneID)
	return View{
		Scene:    scene,
		State:    s.state.Clone(),
		Progress: progress.Encode(s.state),
	}
}

// Graph returns the story graph the session plays.
func (s *Session) Graph() *story.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// invalidateLocked bumps the transition token and stops the pending timer.
func (s *Session) invalidateLocked() {
	s.token++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) commit(ctx context.Context, state *domain.SessionState, rev uint64) {
	for _, fn := range s.commits {
		fn(ctx, state.Clone(), rev)
	}
}

func (s *Session) emitEnter(ctx context.Context, state *domain.SessionState, scene domain.Scene) {
	if s.hooks.OnSceneEnter != nil {
		s.hooks.OnSceneEnter(ctx, s.sceneEvent(domain.EventSceneEnter, state, scene))
	}
}

func (s *Session) emitLeave(ctx context.Context, state *domain.SessionState, sceneID string) {
	if s.hooks.OnSceneLeave == nil {
		return
	}
	s.hooks.OnSceneLeave(ctx, &domain.SceneEvent{
		EventBase:  domain.EventBase{Timestamp: s.now(), Type: domain.EventSceneLeave, StoryID: state.StoryID},
		SceneID:    sceneID,
		Completion: state.CompletionPercentage,
	})
}

func (s *Session) sceneEvent(typ domain.EventType, state *domain.SessionState, scene domain.Scene) *domain.SceneEvent {
	return &domain.SceneEvent{
		EventBase:  domain.EventBase{Timestamp: s.now(), Type: typ, StoryID: state.StoryID},
		SceneID:    scene.ID,
		AudioRef:   scene.AudioRef,
		IsEnding:   scene.IsEnding,
		EndingType: scene.EndingType,
		Completion: state.CompletionPercentage,
	}
}

func (s *Session) logRejection(out Outcome, storyID, sceneID, choiceID string) {
	switch {
	case out.Integrity:
		s.logger.Warn("Story integrity problem, transition skipped",
			"story_id", storyID,
			"scene_id", sceneID,
			"choice_id", choiceID,
			"reason", out.Reason,
		)
	case out.Result == ResultRejected:
		s.logger.Info("Choice rejected",
			"story_id", storyID,
			"scene_id", sceneID,
			"choice_id", choiceID,
			"reason", out.Reason,
		)
	default:
		s.logger.Debug("Event ignored",
			"story_id", storyID,
			"scene_id", sceneID,
			"choice_id", choiceID,
			"reason", out.Reason,
		)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/branchline/branchline/pkg/progress"
	"github.com/branchline/branchline/pkg/story"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultSaveTimeout = 5 * time.Second
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// version orders commits of a key across re-opened sessions.
type version struct {
	generation uint64
	revision   uint64
}

func (v version) after(o version) bool {
	if v.generation != o.generation {
		return v.generation > o.generation
	}
	return v.revision > o.revision
}

type openSession struct {
	key        domain.SnapshotKey
	generation uint64
	session    *Session
}

// Observer is notified whenever a player's session state changes.
type Observer func(ctx context.Context, key domain.SnapshotKey, state *domain.SessionState)

// Manager owns the open play-throughs, one per player.
// It loads stories and snapshots through the ports and persists every committed
// scene change in the background. Saves of the same key are serialized and a save
// older than the last one written is skipped.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	stories ports.StoryRepository
	store   ports.SnapshotStore

	mu         sync.Mutex              // Global lock for the maps
	locks      map[string]*lockEntry   // Map of active locks
	sessions   map[string]*openSession // Open sessions by user key
	saved      map[domain.SnapshotKey]version
	generation uint64

	// In-flight background saves, per key and in total. idle is signalled under mu
	// whenever one finishes.
	inflight map[domain.SnapshotKey]int
	saving   int
	idle     *sync.Cond
	// cleared holds, per forgotten key, the last generation whose saves are refused.
	cleared map[domain.SnapshotKey]uint64

	locker      ports.DistributedLocker // Optional distributed locker
	lockTTL     time.Duration
	saveTimeout time.Duration
	sessionOpts []Option
	observers   []Observer
	graphOpts   []story.LoadOption
	logger      *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLocker enables distributed locking around snapshot writes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithSessionOptions applies opts to every session the Manager opens.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

// WithObserver registers a listener for state changes of any session.
func WithObserver(fn Observer) ManagerOption {
	return func(m *Manager) {
		m.observers = append(m.observers, fn)
	}
}

// WithStoryLoadOptions is passed to story.Load for every fetched story.
func WithStoryLoadOptions(opts ...story.LoadOption) ManagerOption {
	return func(m *Manager) {
		m.graphOpts = append(m.graphOpts, opts...)
	}
}

// WithSaveTimeout bounds each background save.
func WithSaveTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.saveTimeout = d
	}
}

// WithManagerLogger configures a logger for the Manager and its sessions.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new session Manager over the content and persistence ports.
func NewManager(stories ports.StoryRepository, store ports.SnapshotStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		stories:     stories,
		store:       store,
		locks:       make(map[string]*lockEntry),
		sessions:    make(map[string]*openSession),
		saved:       make(map[domain.SnapshotKey]version),
		inflight:    make(map[domain.SnapshotKey]int),
		cleared:     make(map[domain.SnapshotKey]uint64),
		lockTTL:     defaultLockTTL,
		saveTimeout: defaultSaveTimeout,
		logger:      logging.NewNop(), // Default to no-op
	}
	m.idle = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// withLocalLock serializes fn with other callers using the same key.
func (m *Manager) withLocalLock(key string, fn func() error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()
	return fn()
}

// WithLock executes fn while holding the local and, if configured, distributed lock for key.
func (m *Manager) WithLock(ctx context.Context, key domain.SnapshotKey, fn func(context.Context) error) error {
	return m.withLocalLock("snapshot:"+key.String(), func() error {
		if m.locker != nil {
			unlock, err := m.locker.Lock(ctx, key.String(), m.lockTTL)
			if err != nil {
				return fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
			defer func() {
				if err := unlock(ctx); err != nil {
					m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
						"key", key.String(),
						"err", err,
					)
				}
			}()
		}
		return fn(ctx)
	})
}

// Open starts or resumes userKey's play-through of storyID.
// An unknown story is an error and leaves the player's current session untouched.
// A snapshot that cannot be loaded is logged and the story starts fresh.
// Opening a different story replaces the player's previous session.
func (m *Manager) Open(ctx context.Context, userKey, storyID string) (*Session, error) {
	var opened *Session
	err := m.withLocalLock("user:"+userKey, func() error {
		if s, ok := m.Get(userKey, storyID); ok {
			opened = s
			return nil
		}

		def, err := m.stories.FetchStory(ctx, storyID)
		if err != nil {
			return fmt.Errorf("failed to fetch story %q: %w", storyID, err)
		}
		g, err := story.Load(*def, m.graphOpts...)
		if err != nil {
			return err
		}

		key := domain.SnapshotKey{UserKey: userKey, StoryID: storyID}
		snap, err := m.store.Load(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrSnapshotNotFound) {
				m.logger.Warn("Failed to load progress, starting fresh", "key", key.String(), "err", err)
			}
			snap = nil
		}

		m.mu.Lock()
		m.generation++
		gen := m.generation
		m.mu.Unlock()

		opts := make([]Option, 0, len(m.sessionOpts)+2)
		opts = append(opts, WithLogger(m.logger))
		opts = append(opts, m.sessionOpts...)
		opts = append(opts, WithCommitFunc(m.persist(key, gen)))
		opened = New(ctx, g, snap, opts...)

		m.mu.Lock()
		prev := m.sessions[userKey]
		m.sessions[userKey] = &openSession{key: key, generation: gen, session: opened}
		m.mu.Unlock()

		if prev != nil {
			prev.session.Close()
			m.logger.Debug("Replaced session", "user_key", userKey, "story_id", prev.key.StoryID)
		}
		m.logger.Info("Session opened",
			"user_key", userKey,
			"story_id", storyID,
			"resumed", snap != nil,
		)
		m.notify(ctx, key, opened.State())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// Get returns the open session of userKey for storyID.
func (m *Manager) Get(userKey, storyID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[userKey]
	if !ok || entry.key.StoryID != storyID || entry.session.Closed() {
		return nil, false
	}
	return entry.session, true
}

// SelectChoice forwards a choice to the player's open session.
func (m *Manager) SelectChoice(ctx context.Context, userKey, storyID, choiceID string) (Result, error) {
	s, ok := m.Get(userKey, storyID)
	if !ok {
		return ResultIgnored, domain.ErrSessionNotFound
	}
	res := s.SelectChoice(ctx, choiceID)
	if res.Changed() {
		m.notify(ctx, domain.SnapshotKey{UserKey: userKey, StoryID: storyID}, s.State())
	}
	return res, nil
}

// Restart forwards a restart to the player's open session.
func (m *Manager) Restart(ctx context.Context, userKey, storyID string) (Result, error) {
	s, ok := m.Get(userKey, storyID)
	if !ok {
		return ResultIgnored, domain.ErrSessionNotFound
	}
	return s.Restart(ctx), nil
}

// Close discards the player's session and cancels its pending transition.
// Stored progress is kept.
func (m *Manager) Close(userKey, storyID string) error {
	m.mu.Lock()
	entry, ok := m.sessions[userKey]
	if !ok || entry.key.StoryID != storyID {
		m.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(m.sessions, userKey)
	m.mu.Unlock()

	entry.session.Close()
	m.logger.Debug("Session closed", "user_key", userKey, "story_id", storyID)
	return nil
}

// Forget closes the player's session, if any, and deletes their stored progress.
// Saves still pending from sessions opened before the call are dropped, so the
// deleted progress cannot reappear. Saves of other keys are not waited for.
func (m *Manager) Forget(ctx context.Context, userKey, storyID string) error {
	if err := m.Close(userKey, storyID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	key := domain.SnapshotKey{UserKey: userKey, StoryID: storyID}

	m.mu.Lock()
	m.cleared[key] = m.generation
	for m.inflight[key] > 0 {
		m.idle.Wait()
	}
	delete(m.saved, key)
	m.mu.Unlock()

	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stories exposes the content port.
func (m *Manager) Stories() ports.StoryRepository {
	return m.stories
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// Flush blocks until no background save is running.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.saving > 0 {
		m.idle.Wait()
	}
}

// Shutdown closes every session and waits for pending saves, or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*openSession)
	m.mu.Unlock()

	for _, entry := range open {
		entry.session.Close()
	}

	done := make(chan struct{})
	go func() {
		m.Flush()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist returns the commit listener that saves snapshots of key in the background.
func (m *Manager) persist(key domain.SnapshotKey, gen uint64) CommitFunc {
	return func(ctx context.Context, state *domain.SessionState, rev uint64) {
		m.notify(ctx, key, state)

		snap := progress.Encode(state)
		v := version{generation: gen, revision: rev}
		saveCtx := context.WithoutCancel(ctx)

		if !m.beginSave(key, gen) {
			m.logger.Debug("Dropping save of forgotten progress", "key", key.String(), "revision", rev)
			return
		}
		go func() {
			defer m.endSave(key)
			ctx, cancel := context.WithTimeout(saveCtx, m.saveTimeout)
			defer cancel()

			err := m.WithLock(ctx, key, func(ctx context.Context) error {
				if !m.advance(key, v) {
					m.logger.Debug("Skipping superseded snapshot", "key", key.String(), "revision", rev)
					return nil
				}
				return m.store.Save(ctx, key, snap)
			})
			if err != nil {
				m.logger.Warn("Failed to persist progress", "key", key.String(), "err", err)
			}
		}()
	}
}

// beginSave registers a save of key by generation gen, unless key was forgotten after gen opened.
func (m *Manager) beginSave(key domain.SnapshotKey, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.cleared[key]; ok && gen <= last {
		return false
	}
	m.inflight[key]++
	m.saving++
	return true
}

func (m *Manager) endSave(key domain.SnapshotKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[key]--; m.inflight[key] <= 0 {
		delete(m.inflight, key)
	}
	m.saving--
	m.idle.Broadcast()
}

func (m *Manager) advance(key domain.SnapshotKey, v version) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.cleared[key]; ok && v.generation <= last {
		return false
	}
	if last, ok := m.saved[key]; ok && !v.after(last) {
		return false
	}
	m.saved[key] = v
	return true
}

func (m *Manager) notify(ctx context.Context, key domain.SnapshotKey, state *domain.SessionState) {
	for _, fn := range m.observers {
		fn(ctx, key, state)
	}
}

package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/adapters/memory"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	sched *testutils.ManualScheduler
	store *memory.Store
	mgr   *session.Manager
}

func newManagerFixture(t *testing.T, opts ...session.ManagerOption) *managerFixture {
	t.Helper()
	repo, err := memory.NewStoryRepository(testutils.BranchingStory(), testutils.CyclicStory())
	require.NoError(t, err)

	f := &managerFixture{sched: &testutils.ManualScheduler{}, store: memory.NewStore()}
	opts = append([]session.ManagerOption{
		session.WithSessionOptions(session.WithScheduler(f.sched.AfterFunc)),
	}, opts...)
	f.mgr = session.NewManager(repo, f.store, opts...)
	return f
}

func TestManager_OpenFreshAndPersist(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	assert.Equal(t, "scene_1", s.State().CurrentSceneID)
	assert.Equal(t, 1, f.mgr.Active())

	res, err := f.mgr.SelectChoice(ctx, "alice", "branching", "right")
	require.NoError(t, err)
	require.Equal(t, session.ResultChoiceCommitted, res)
	require.Equal(t, 1, f.sched.Fire())
	f.mgr.Flush()

	snap, err := f.store.Load(ctx, domain.SnapshotKey{UserKey: "alice", StoryID: "branching"})
	require.NoError(t, err)
	assert.Equal(t, "scene_3", snap.CurrentSceneID)
	assert.Equal(t, 1, snap.TotalChoicesMade)
	assert.Equal(t, 67, snap.CompletionPercentage)
}

func TestManager_OpenReturnsExistingSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	second, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManager_ResumeFromStore(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	key := domain.SnapshotKey{UserKey: "bob", StoryID: "branching"}

	require.NoError(t, f.store.Save(ctx, key, &domain.ProgressSnapshot{
		CurrentSceneID:       "scene_2",
		ChoiceHistory:        []domain.ChoiceRecord{{FromSceneID: "scene_1", ChoiceID: "left", Timestamp: time.Unix(0, 0).UTC()}},
		DiscoveredEndings:    []string{"ending_bad"},
		CompletionPercentage: 67,
		TotalChoicesMade:     1,
	}))

	s, err := f.mgr.Open(ctx, "bob", "branching")
	require.NoError(t, err)
	state := s.State()
	assert.Equal(t, "scene_2", state.CurrentSceneID)
	assert.Equal(t, []string{"ending_bad"}, state.DiscoveredEndings.Sorted())
	assert.Equal(t, 67, state.CompletionPercentage)
}

func TestManager_UnknownStory(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)

	_, err = f.mgr.Open(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)

	_, ok := f.mgr.Get("alice", "branching")
	assert.True(t, ok, "failed open must not replace the current session")
}

func TestManager_MalformedStory(t *testing.T) {
	broken := testutils.BranchingStory()
	broken.ID = "broken"
	broken.StartSceneID = "nowhere"
	repo, err := memory.NewStoryRepository(broken)
	require.NoError(t, err)

	mgr := session.NewManager(repo, memory.NewStore())
	_, err = mgr.Open(context.Background(), "alice", "broken")
	assert.ErrorIs(t, err, story.ErrMalformedStory)
	assert.Zero(t, mgr.Active())
}

func TestManager_OpenOtherStoryReplacesSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	require.Equal(t, session.ResultChoiceCommitted, first.SelectChoice(ctx, "left"))

	second, err := f.mgr.Open(ctx, "alice", "cyclic")
	require.NoError(t, err)
	assert.True(t, first.Closed())
	assert.Equal(t, 1, f.mgr.Active())
	assert.Equal(t, "hall", second.State().CurrentSceneID)

	// The replaced session's pending transition must not land.
	f.sched.FireAll(true)
	f.mgr.Flush()
	_, err = f.store.Load(ctx, domain.SnapshotKey{UserKey: "alice", StoryID: "branching"})
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	_, err = f.mgr.SelectChoice(ctx, "alice", "branching", "left")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_CloseAndForget(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	key := domain.SnapshotKey{UserKey: "alice", StoryID: "branching"}

	_, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	_, err = f.mgr.Restart(ctx, "alice", "branching")
	require.NoError(t, err)
	f.mgr.Flush()

	require.NoError(t, f.mgr.Close("alice", "branching"))
	assert.ErrorIs(t, f.mgr.Close("alice", "branching"), domain.ErrSessionNotFound)

	_, err = f.store.Load(ctx, key)
	require.NoError(t, err, "close keeps stored progress")

	require.NoError(t, f.mgr.Forget(ctx, "alice", "branching"))
	_, err = f.store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestManager_RestartPersistsAndKeepsEndings(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	for _, c := range []string{"right", "enter"} {
		require.Equal(t, session.ResultChoiceCommitted, s.SelectChoice(ctx, c))
		require.Equal(t, 1, f.sched.Fire())
	}

	res, err := f.mgr.Restart(ctx, "alice", "branching")
	require.NoError(t, err)
	assert.Equal(t, session.ResultRestarted, res)
	f.mgr.Flush()

	snap, err := f.store.Load(ctx, domain.SnapshotKey{UserKey: "alice", StoryID: "branching"})
	require.NoError(t, err)
	assert.Equal(t, "scene_1", snap.CurrentSceneID)
	assert.Equal(t, []string{"ending_bad"}, snap.DiscoveredEndings)
	assert.Zero(t, snap.TotalChoicesMade)
	assert.Empty(t, snap.ChoiceHistory)
}

func TestManager_Observer(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	f := newManagerFixture(t, session.WithObserver(func(_ context.Context, key domain.SnapshotKey, state *domain.SessionState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, key.UserKey+":"+state.CurrentSceneID)
	}))
	ctx := context.Background()

	_, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	_, err = f.mgr.SelectChoice(ctx, "alice", "branching", "left")
	require.NoError(t, err)
	f.sched.Fire()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"alice:scene_1", "alice:scene_1", "alice:scene_2"}, seen)
}

// MockSnapshotStore is a testify mock of ports.SnapshotStore.
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error {
	return m.Called(ctx, key, snap).Error(0)
}

func (m *MockSnapshotStore) Load(ctx context.Context, key domain.SnapshotKey) (*domain.ProgressSnapshot, error) {
	args := m.Called(ctx, key)
	snap, _ := args.Get(0).(*domain.ProgressSnapshot)
	return snap, args.Error(1)
}

func (m *MockSnapshotStore) Delete(ctx context.Context, key domain.SnapshotKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockSnapshotStore) List(ctx context.Context) ([]domain.SnapshotKey, error) {
	args := m.Called(ctx)
	keys, _ := args.Get(0).([]domain.SnapshotKey)
	return keys, args.Error(1)
}

func TestManager_StoreFailuresAreTolerated(t *testing.T) {
	repo, err := memory.NewStoryRepository(testutils.BranchingStory())
	require.NoError(t, err)

	store := new(MockSnapshotStore)
	store.On("Load", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	store.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	sched := &testutils.ManualScheduler{}
	mgr := session.NewManager(repo, store, session.WithSessionOptions(session.WithScheduler(sched.AfterFunc)))
	ctx := context.Background()

	s, err := mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err, "load failure falls back to a fresh start")
	assert.Equal(t, "scene_1", s.State().CurrentSceneID)

	require.Equal(t, session.ResultChoiceCommitted, s.SelectChoice(ctx, "left"))
	sched.Fire()
	mgr.Flush()

	assert.Equal(t, "scene_2", s.State().CurrentSceneID, "save failure does not affect the session")
	store.AssertNumberOfCalls(t, "Save", 1)
}

func TestManager_Shutdown(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)

	require.NoError(t, f.mgr.Shutdown(ctx))
	assert.True(t, s.Closed())
	assert.Zero(t, f.mgr.Active())
}

// gatedStore holds every Save until release is closed.
type gatedStore struct {
	*memory.Store
	started chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memory.NewStore(),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, key domain.SnapshotKey, snap *domain.ProgressSnapshot) error {
	g.started <- struct{}{}
	<-g.release
	return g.Store.Save(ctx, key, snap)
}

func TestManager_ForgetWaitsForInflightSaves(t *testing.T) {
	repo, err := memory.NewStoryRepository(testutils.BranchingStory())
	require.NoError(t, err)
	store := newGatedStore()
	sched := &testutils.ManualScheduler{}
	mgr := session.NewManager(repo, store, session.WithSessionOptions(session.WithScheduler(sched.AfterFunc)))
	ctx := context.Background()
	key := domain.SnapshotKey{UserKey: "alice", StoryID: "branching"}

	_, err = mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	_, err = mgr.SelectChoice(ctx, "alice", "branching", "left")
	require.NoError(t, err)
	require.Equal(t, 1, sched.Fire())
	<-store.started

	// Queued behind the blocked save; must be dropped once Forget begins.
	_, err = mgr.Restart(ctx, "alice", "branching")
	require.NoError(t, err)

	forgotten := make(chan error, 1)
	go func() { forgotten <- mgr.Forget(ctx, "alice", "branching") }()

	assert.Never(t, func() bool { return len(forgotten) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"forget returned while a save of the key was running")

	close(store.release)
	require.NoError(t, <-forgotten)
	mgr.Flush()

	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "a save started before forget must not restore progress")

	// A new play-through of the key is saved again.
	_, err = mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	_, err = mgr.SelectChoice(ctx, "alice", "branching", "right")
	require.NoError(t, err)
	require.Equal(t, 1, sched.Fire())
	mgr.Flush()

	snap, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "scene_3", snap.CurrentSceneID)
}

func TestManager_ForgetAlongsideOtherPlayers(t *testing.T) {
	repo, err := memory.NewStoryRepository(testutils.BranchingStory())
	require.NoError(t, err)
	mgr := session.NewManager(repo, memory.NewStore(),
		session.WithSessionOptions(session.WithTransitionDelay(0)),
	)
	ctx := context.Background()

	stop := make(chan struct{})
	var forgetter sync.WaitGroup
	forgetter.Add(1)
	go func() {
		defer forgetter.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, mgr.Forget(ctx, "other", "branching"))
			}
		}
	}()

	var players sync.WaitGroup
	for i := 0; i < 8; i++ {
		players.Add(1)
		go func(user string) {
			defer players.Done()
			for j := 0; j < 20; j++ {
				_, err := mgr.Open(ctx, user, "branching")
				if !assert.NoError(t, err) {
					return
				}
				_, err = mgr.SelectChoice(ctx, user, "branching", "left")
				assert.NoError(t, err)
				_, err = mgr.Restart(ctx, user, "branching")
				assert.NoError(t, err)
			}
		}(string(rune('a' + i)))
	}

	players.Wait()
	close(stop)
	forgetter.Wait()
	require.NoError(t, mgr.Shutdown(ctx))
}

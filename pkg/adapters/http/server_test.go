package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/branchline/branchline/internal/testutils"
	"github.com/branchline/branchline/pkg/adapters/memory"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sched   *testutils.ManualScheduler
	store   *memory.Store
	mgr     *session.Manager
	streams *StreamManager
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := memory.NewStoryRepository(testutils.BranchingStory(), testutils.CyclicStory())
	require.NoError(t, err)

	f := &fixture{
		sched:   &testutils.ManualScheduler{},
		store:   memory.NewStore(),
		streams: NewStreamManager(nil),
	}
	f.mgr = session.NewManager(repo, f.store,
		session.WithSessionOptions(session.WithScheduler(f.sched.AfterFunc)),
		session.WithObserver(f.streams.Observer()),
	)
	f.handler = NewHandler(f.mgr, f.streams, WithVersion("test"))
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test","sessions":0}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID_Echoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestListStories(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/stories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stories":["branching","cyclic"]}`, w.Body.String())
}

func TestGetGraph(t *testing.T) {
	f := newFixture(t)

	t.Run("JSON", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories/branching/graph", "")
		require.Equal(t, http.StatusOK, w.Code)
		var def domain.Story
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &def))
		assert.Equal(t, "scene_1", def.StartSceneID)
		assert.Len(t, def.Scenes, 5)
	})

	t.Run("Mermaid With Overlay", func(t *testing.T) {
		_, err := f.mgr.Open(context.Background(), "alice", "branching")
		require.NoError(t, err)

		w := f.do(t, http.MethodGet, "/stories/branching/graph?format=mermaid&user=alice", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))
		assert.Contains(t, w.Body.String(), "class scene_1 current;")
	})

	t.Run("Unknown Story", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stories/nope/graph", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPlayThrough(t *testing.T) {
	f := newFixture(t)
	base := "/players/alice/stories/branching"

	w := f.do(t, http.MethodPost, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	assert.Equal(t, "scene_1", v.Scene.ID)
	assert.Equal(t, "scene_1", v.Progress.CurrentSceneID)

	w = f.do(t, http.MethodPost, base+"/choices", `{"choiceId":"right"}`)
	require.Equal(t, http.StatusOK, w.Code)
	v = decodeView(t, w)
	assert.Equal(t, "choice_committed", v.Result)
	assert.True(t, v.State.Transitioning)
	assert.Equal(t, "scene_1", v.Scene.ID)

	w = f.do(t, http.MethodPost, base+"/choices", `{"choiceId":"left"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", decodeView(t, w).Result)

	require.Equal(t, 1, f.sched.Fire())

	w = f.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	v = decodeView(t, w)
	assert.Equal(t, "scene_3", v.Scene.ID)
	assert.Equal(t, 67, v.Progress.CompletionPercentage)

	w = f.do(t, http.MethodPost, base+"/choices", `{"choiceId":"left"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", decodeView(t, w).Result)

	w = f.do(t, http.MethodPost, base+"/restart", "")
	require.Equal(t, http.StatusOK, w.Code)
	v = decodeView(t, w)
	assert.Equal(t, "restarted", v.Result)
	assert.Equal(t, "scene_1", v.Scene.ID)
	assert.Empty(t, v.Progress.ChoiceHistory)

	w = f.do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.mgr.Flush()
	_, err := f.store.Load(context.Background(), domain.SnapshotKey{UserKey: "alice", StoryID: "branching"})
	assert.NoError(t, err, "close keeps stored progress")
}

func TestCloseSession_Forget(t *testing.T) {
	f := newFixture(t)
	base := "/players/alice/stories/branching"
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base, "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/restart", "").Code)
	f.mgr.Flush()

	w := f.do(t, http.MethodDelete, base+"?forget=true", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err := f.store.Load(context.Background(), domain.SnapshotKey{UserKey: "alice", StoryID: "branching"})
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"Unknown Story", http.MethodPost, "/players/alice/stories/nope", "", http.StatusNotFound},
		{"No Session", http.MethodGet, "/players/alice/stories/branching", "", http.StatusNotFound},
		{"Choice Without Session", http.MethodPost, "/players/alice/stories/branching/choices", `{"choiceId":"left"}`, http.StatusNotFound},
		{"Restart Without Session", http.MethodPost, "/players/alice/stories/branching/restart", "", http.StatusNotFound},
		{"Close Without Session", http.MethodDelete, "/players/alice/stories/branching", "", http.StatusNotFound},
		{"Bad Body", http.MethodPost, "/players/alice/stories/branching/choices", `{`, http.StatusBadRequest},
		{"Missing Choice", http.MethodPost, "/players/alice/stories/branching/choices", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestEscapedUserKey(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/players/team%2Fbob/stories/branching", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "team/bob", decodeView(t, w).UserKey)

	_, ok := f.mgr.Get("team/bob", "branching")
	assert.True(t, ok)
}

// readEvents collects SSE data payloads until n arrive or the deadline passes.
func readEvents(t *testing.T, sc *bufio.Scanner, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n && sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

func subscribe(t *testing.T, ctx context.Context, srv *httptest.Server, path string) *bufio.Scanner {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewScanner(resp.Body)
}

func waitSubscribed(t *testing.T, sm *StreamManager, topic string) {
	t.Helper()
	require.Eventually(t, func() bool { return sm.Subscribers(topic) > 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeEvents_Diffs(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)

	sc := subscribe(t, ctx, srv, "/players/alice/stories/branching/events")
	waitSubscribed(t, f.streams, "alice/branching")

	initial := readEvents(t, sc, 2)
	require.Len(t, initial, 2)
	assert.Equal(t, "connected", initial[0])
	assert.Contains(t, initial[1], `"current_scene_id":"scene_1"`)

	_, err = f.mgr.SelectChoice(ctx, "alice", "branching", "left")
	require.NoError(t, err)
	require.Equal(t, 1, f.sched.Fire())

	events := readEvents(t, sc, 2)
	require.Len(t, events, 2)

	var committed, entered domain.StateDiff
	require.NoError(t, json.Unmarshal([]byte(events[0]), &committed))
	require.NoError(t, json.Unmarshal([]byte(events[1]), &entered))

	require.NotNil(t, committed.Transitioning)
	assert.True(t, *committed.Transitioning)
	require.Len(t, committed.HistoryAppended, 1)
	assert.Equal(t, "left", committed.HistoryAppended[0].ChoiceID)

	require.NotNil(t, entered.CurrentSceneID)
	assert.Equal(t, "scene_2", *entered.CurrentSceneID)
	require.NotNil(t, entered.Completion)
	assert.Equal(t, 67, *entered.Completion)
	assert.Empty(t, entered.HistoryAppended)
}

func TestSubscribeEvents_WatchFilter(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sc := subscribe(t, ctx, srv, "/players/alice/stories/branching/events?watch=endings")
	waitSubscribed(t, f.streams, "alice/branching")
	require.Equal(t, []string{"connected"}, readEvents(t, sc, 1))

	_, err := f.mgr.Open(ctx, "alice", "branching")
	require.NoError(t, err)
	for _, choice := range []string{"right", "enter"} {
		res, err := f.mgr.SelectChoice(ctx, "alice", "branching", choice)
		require.NoError(t, err)
		require.Equal(t, session.ResultChoiceCommitted, res)
		require.Equal(t, 1, f.sched.Fire())
	}

	events := readEvents(t, sc, 1)
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"new_endings":["ending_bad"]`)
}

func TestStreamManager_PublishDiffsAgainstLast(t *testing.T) {
	sm := NewStreamManager(nil)
	key := domain.SnapshotKey{UserKey: "u", StoryID: "s"}
	ch, cancel := sm.Subscribe(key.String())
	defer cancel()

	state := domain.NewSessionState("s", "a")
	sm.Publish(key, state)
	sm.Publish(key, state)

	first := <-ch
	assert.Contains(t, first, `"current_scene_id":"a"`)
	select {
	case msg := <-ch:
		t.Fatalf("unchanged state must not broadcast, got %s", msg)
	default:
	}

	sm.Forget(key)
	sm.Publish(key, state)
	assert.Contains(t, <-ch, `"current_scene_id":"a"`)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("t")
	for i := 0; i < 20; i++ {
		sm.Broadcast("t", "msg")
	}
	assert.Len(t, ch, cap(ch))

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("t"))
}

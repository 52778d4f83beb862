package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/internal/presentation/graph"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server exposes a session manager over HTTP.
type Server struct {
	Manager *session.Manager
	Streams *StreamManager

	version string
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the HTTP server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates the HTTP handler for mgr. Streams must be registered as an
// observer of mgr for the events endpoint to receive updates.
func NewHandler(mgr *session.Manager, streams *StreamManager, opts ...Option) http.Handler {
	s := &Server{
		Manager: mgr,
		Streams: streams,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/stories", s.ListStories)
	r.Get("/stories/{storyID}/graph", s.GetGraph)

	r.Route("/players/{userKey}/stories/{storyID}", func(r chi.Router) {
		r.Post("/", s.OpenSession)
		r.Get("/", s.GetSession)
		r.Delete("/", s.CloseSession)
		r.Post("/choices", s.SelectChoice)
		r.Post("/restart", s.Restart)
		r.Get("/events", s.SubscribeEvents)
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID echoes X-Request-ID, generating one when the client sent none.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// SessionView is the response body of the player endpoints.
type SessionView struct {
	UserKey  string                   `json:"userKey"`
	StoryID  string                   `json:"storyId"`
	Result   string                   `json:"result,omitempty"`
	Scene    domain.Scene             `json:"scene"`
	State    *domain.SessionState     `json:"state"`
	Progress *domain.ProgressSnapshot `json:"progress"`
}

// ChoiceRequest is the body of POST .../choices.
type ChoiceRequest struct {
	ChoiceID string `json:"choiceId"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.Manager.Active(),
	})
}

// ListStories handles GET /stories.
func (s *Server) ListStories(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Manager.Stories().ListStories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stories": ids})
}

// GetGraph handles GET /stories/{storyID}/graph. With ?format=mermaid it
// returns a flowchart; ?user=<key> overlays that player's open session.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	storyID := param(r, "storyID")
	def, err := s.Manager.Stories().FetchStory(r.Context(), storyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := story.Load(*def)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") != "mermaid" {
		s.writeJSON(w, http.StatusOK, g.Definition())
		return
	}

	var overlay *graph.Overlay
	if user := r.URL.Query().Get("user"); user != "" {
		if sess, ok := s.Manager.Get(user, storyID); ok {
			overlay = graph.OverlayFor(sess.State())
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, graph.ToMermaid(g, overlay))
}

// OpenSession handles POST /players/{userKey}/stories/{storyID}.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	userKey, storyID := param(r, "userKey"), param(r, "storyID")
	sess, err := s.Manager.Open(r.Context(), userKey, storyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(userKey, storyID, sess, ""))
}

// GetSession handles GET /players/{userKey}/stories/{storyID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	userKey, storyID := param(r, "userKey"), param(r, "storyID")
	sess, ok := s.Manager.Get(userKey, storyID)
	if !ok {
		s.writeError(w, r, domain.ErrSessionNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(userKey, storyID, sess, ""))
}

// CloseSession handles DELETE /players/{userKey}/stories/{storyID}.
// With ?forget=true the stored progress is deleted as well.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	userKey, storyID := param(r, "userKey"), param(r, "storyID")
	key := domain.SnapshotKey{UserKey: userKey, StoryID: storyID}

	var err error
	if r.URL.Query().Get("forget") == "true" {
		err = s.Manager.Forget(r.Context(), userKey, storyID)
	} else {
		err = s.Manager.Close(userKey, storyID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Streams.Forget(key)
	w.WriteHeader(http.StatusNoContent)
}

// SelectChoice handles POST /players/{userKey}/stories/{storyID}/choices.
// Rejected and ignored choices are not errors; the result field reports them.
func (s *Server) SelectChoice(w http.ResponseWriter, r *http.Request) {
	userKey, storyID := param(r, "userKey"), param(r, "storyID")

	var body ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChoiceID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SelectChoice: invalid request body", "err", err)
		return
	}

	res, err := s.Manager.SelectChoice(r.Context(), userKey, storyID, body.ChoiceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, ok := s.Manager.Get(userKey, storyID)
	if !ok {
		s.writeError(w, r, domain.ErrSessionNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(userKey, storyID, sess, res.String()))
}

// Restart handles POST /players/{userKey}/stories/{storyID}/restart.
func (s *Server) Restart(w http.ResponseWriter, r *http.Request) {
	userKey, storyID := param(r, "userKey"), param(r, "storyID")
	res, err := s.Manager.Restart(r.Context(), userKey, storyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, ok := s.Manager.Get(userKey, storyID)
	if !ok {
		s.writeError(w, r, domain.ErrSessionNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(userKey, storyID, sess, res.String()))
}

// SubscribeEvents handles GET /players/{userKey}/stories/{storyID}/events (SSE).
// The optional watch parameter is a comma separated subset of
// scene, transitioning, history, endings, completion.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	userKey, storyID := param(r, "userKey"), param(r, "storyID")
	key := domain.SnapshotKey{UserKey: userKey, StoryID: storyID}

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, field := range strings.Split(watch, ",") {
			watchList = append(watchList, strings.TrimSpace(field))
		}
	}

	ch, cancel := s.Streams.Subscribe(key.String())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if sess, ok := s.Manager.Get(userKey, storyID); ok {
		if payload, err := json.Marshal(domain.Diff(nil, sess.State())); err == nil {
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
		}
	}
	flusher.Flush()
	s.logger.Info("SSE client subscribed", "key", key.String())

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "key", key.String())
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, fields []string) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch field {
		case "scene":
			if diff.CurrentSceneID != nil || diff.AtEnding != nil {
				return true
			}
		case "transitioning":
			if diff.Transitioning != nil {
				return true
			}
		case "history":
			if len(diff.HistoryAppended) > 0 || diff.HistoryReset || diff.TotalChoices != nil {
				return true
			}
		case "endings":
			if len(diff.NewEndings) > 0 {
				return true
			}
		case "completion":
			if diff.Completion != nil {
				return true
			}
		}
	}
	return false
}

func (s *Server) view(userKey, storyID string, sess *session.Session, result string) SessionView {
	v := sess.View()
	return SessionView{
		UserKey:  userKey,
		StoryID:  storyID,
		Result:   result,
		Scene:    v.Scene,
		State:    v.State,
		Progress: v.Progress,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("Request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStoryNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, story.ErrMalformedStory):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// param returns the unescaped URL parameter name.
func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

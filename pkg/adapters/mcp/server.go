package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
	"github.com/branchline/branchline/pkg/story"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionResponse is the structured result shared by the session tools.
type SessionResponse struct {
	Result        string                   `json:"result,omitempty" jsonschema_description:"What the engine did with the request"`
	Scene         *domain.Scene            `json:"scene,omitempty" jsonschema_description:"The scene currently displayed"`
	Transitioning bool                     `json:"transitioning" jsonschema_description:"A choice was taken and the next scene is pending"`
	Open          bool                     `json:"open" jsonschema_description:"Whether the player has an open session for the story"`
	Progress      *domain.ProgressSnapshot `json:"progress,omitempty" jsonschema_description:"Persistable progress of the play-through"`
}

// Server exposes a session manager as an MCP server.
type Server struct {
	manager   *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the MCP server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(mgr *session.Manager, version string, opts ...Option) *Server {
	s := &Server{
		manager:   mgr,
		mcpServer: server.NewMCPServer("branchline-mcp", version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on addr using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	userKey := mcp.WithString("user_key", mcp.Required(), mcp.Description("Player identity"))
	storyID := mcp.WithString("story_id", mcp.Required(), mcp.Description("Story to play"))

	s.mcpServer.AddTool(mcp.NewTool("open_story",
		mcp.WithDescription("Start or resume a play-through. Returns the current scene and its choices."),
		userKey, storyID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleOpen))

	s.mcpServer.AddTool(mcp.NewTool("select_choice",
		mcp.WithDescription("Take a choice on the current scene. The next scene appears after the transition delay; call get_progress to see it."),
		userKey, storyID,
		mcp.WithString("choice_id", mcp.Required(), mcp.Description("Id of a choice offered by the current scene")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleSelectChoice))

	s.mcpServer.AddTool(mcp.NewTool("restart_story",
		mcp.WithDescription("Return to the start scene. Discovered endings are kept."),
		userKey, storyID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleRestart))

	s.mcpServer.AddTool(mcp.NewTool("get_progress",
		mcp.WithDescription("Get the player's progress, from the open session or from storage."),
		userKey, storyID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetProgress))

	s.mcpServer.AddTool(mcp.NewTool("list_stories",
		mcp.WithDescription("List the ids of the available stories."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.manager.Stories().ListStories(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func stringArgs(args map[string]interface{}, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, _ := args[name].(string)
		if v == "" {
			return nil, fmt.Errorf("missing argument %q", name)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) handleOpen(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	a, err := stringArgs(args, "user_key", "story_id")
	if err != nil {
		return SessionResponse{}, err
	}
	sess, err := s.manager.Open(ctx, a[0], a[1])
	if err != nil {
		return SessionResponse{}, fmt.Errorf("open failed: %w", err)
	}
	return respond(sess, ""), nil
}

func (s *Server) handleSelectChoice(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	a, err := stringArgs(args, "user_key", "story_id", "choice_id")
	if err != nil {
		return SessionResponse{}, err
	}
	res, err := s.manager.SelectChoice(ctx, a[0], a[1], a[2])
	if err != nil {
		return SessionResponse{}, fmt.Errorf("select failed: %w", err)
	}
	sess, ok := s.manager.Get(a[0], a[1])
	if !ok {
		return SessionResponse{}, domain.ErrSessionNotFound
	}
	if res == session.ResultRejected {
		s.logger.Info("MCP choice rejected", "user_key", a[0], "story_id", a[1], "choice_id", a[2])
	}
	return respond(sess, res.String()), nil
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	a, err := stringArgs(args, "user_key", "story_id")
	if err != nil {
		return SessionResponse{}, err
	}
	res, err := s.manager.Restart(ctx, a[0], a[1])
	if err != nil {
		return SessionResponse{}, fmt.Errorf("restart failed: %w", err)
	}
	sess, ok := s.manager.Get(a[0], a[1])
	if !ok {
		return SessionResponse{}, domain.ErrSessionNotFound
	}
	return respond(sess, res.String()), nil
}

func (s *Server) handleGetProgress(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	a, err := stringArgs(args, "user_key", "story_id")
	if err != nil {
		return SessionResponse{}, err
	}
	if sess, ok := s.manager.Get(a[0], a[1]); ok {
		return respond(sess, ""), nil
	}

	snap, err := s.manager.Store().Load(ctx, domain.SnapshotKey{UserKey: a[0], StoryID: a[1]})
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return SessionResponse{}, nil
	}
	if err != nil {
		return SessionResponse{}, fmt.Errorf("load failed: %w", err)
	}
	return SessionResponse{Progress: snap}, nil
}

func respond(sess *session.Session, result string) SessionResponse {
	v := sess.View()
	return SessionResponse{
		Result:        result,
		Scene:         &v.Scene,
		Transitioning: v.State.Transitioning,
		Open:          true,
		Progress:      v.Progress,
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("branchline://stories", "Available Stories",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.manager.Stories().ListStories(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stories: %w", err)
		}
		jsonBytes, _ := json.Marshal(ids)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "branchline://stories",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate("branchline://stories/{id}", "Story Definition",
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id, ok := storyFromURI(request.Params.URI)
		if !ok {
			return nil, fmt.Errorf("invalid story uri %q", request.Params.URI)
		}
		def, err := s.manager.Stories().FetchStory(ctx, id)
		if err != nil {
			return nil, err
		}
		g, err := story.Load(*def)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(g.Definition())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func storyFromURI(uri string) (string, bool) {
	const prefix = "branchline://stories/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", false
	}
	return uri[len(prefix):], true
}

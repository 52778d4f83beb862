// Package content fetches story definitions from a remote content service.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/ports"
	"github.com/branchline/branchline/pkg/story"
	"github.com/google/uuid"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ports.StoryRepository = (*Client)(nil)

const maxStoryBytes = 8 << 20

// Client implements ports.StoryRepository against a content service exposing
// GET /stories (JSON array of ids) and GET /stories/{id} (story JSON).
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	maxBytes   int64
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithMaxBytes caps the size of a story document. Defaults to 8 MiB.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		c.maxBytes = n
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the content service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxBytes:   maxStoryBytes,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchStory downloads a story. A 404 maps to domain.ErrStoryNotFound.
func (c *Client) FetchStory(ctx context.Context, storyID string) (*domain.Story, error) {
	body, err := c.get(ctx, "/stories/"+url.PathEscape(storyID))
	if err != nil {
		return nil, fmt.Errorf("fetch story %s: %w", storyID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read story %s: %w", storyID, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &story.MalformedStoryError{
			StoryID: storyID,
			Reason:  "oversized definition",
			Err:     fmt.Errorf("story exceeds %d bytes", c.maxBytes),
		}
	}
	def, err := c.decode(data)
	if err != nil {
		return nil, &story.MalformedStoryError{StoryID: storyID, Reason: "unreadable definition", Err: err}
	}
	if def.ID == "" {
		def.ID = storyID
	}
	return &def, nil
}

// decode accepts a bare story document or one wrapped as {"story": {...}},
// the shape content services use to attach publishing metadata.
func (c *Client) decode(data []byte) (domain.Story, error) {
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return story.Parse(data)
	}
	inner, ok := envelope["story"].(map[string]any)
	if !ok {
		return story.Parse(data)
	}
	if rev, ok := envelope["revision"]; ok {
		c.logger.Debug("Decoding story envelope", "revision", rev)
	}
	return story.Decode(inner)
}

// ListStories returns the ids the content service advertises.
func (c *Client) ListStories(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/stories")
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer body.Close()

	var ids []string
	if err := json.NewDecoder(body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode story list: %w", err)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.logger.With("path", path, "request_id", requestID)
	log.Debug("Requesting content")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Content request failed", "err", err)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, domain.ErrStoryNotFound
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		log.Warn("Content service returned non-OK status", "status_code", resp.StatusCode)
		return nil, fmt.Errorf("content service returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

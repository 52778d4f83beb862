package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/branchline/branchline/internal/logging"
	"github.com/branchline/branchline/pkg/domain"
	"github.com/branchline/branchline/pkg/session"
)

// StreamManager fans session state diffs out to SSE subscribers.
// Topics are snapshot keys rendered as "user/story".
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	last        map[string]*domain.SessionState
	logger      *slog.Logger
}

// NewStreamManager creates an empty stream manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		last:        make(map[string]*domain.SessionState),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for topic. The returned cancel func
// unregisters it and closes the channel.
func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, topic)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers of topic.
func (sm *StreamManager) Subscribers(topic string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[topic])
}

// Broadcast sends msg to every subscriber of topic. Slow subscribers miss messages.
func (sm *StreamManager) Broadcast(topic string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[topic]
	if !ok {
		return
	}
	sm.logger.Debug("Broadcasting", "topic", topic, "subscribers", len(subs), "payload_size", len(msg))
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE client buffer full, dropping message", "topic", topic)
		}
	}
}

// Publish diffs state against the last one published for key and broadcasts the change.
func (sm *StreamManager) Publish(key domain.SnapshotKey, state *domain.SessionState) {
	topic := key.String()

	sm.mu.Lock()
	diff := domain.Diff(sm.last[topic], state)
	sm.last[topic] = state.Clone()
	sm.mu.Unlock()

	if diff == nil {
		return
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("Failed to encode state diff", "topic", topic, "err", err)
		return
	}
	sm.Broadcast(topic, string(payload))
}

// Forget drops the last published state of key, so the next publish is a full diff.
func (sm *StreamManager) Forget(key domain.SnapshotKey) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.last, key.String())
}

// Observer adapts Publish to the session manager's observer hook.
func (sm *StreamManager) Observer() session.Observer {
	return func(_ context.Context, key domain.SnapshotKey, state *domain.SessionState) {
		sm.Publish(key, state)
	}
}

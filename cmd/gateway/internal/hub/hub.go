package hub

import (
	"encoding/json"
	"sync"

	"github.com/gobwas/ws"
	"go.uber.org/zap"
)

// Subscriber is one live connection watching a session.
type Subscriber interface {
	ID() string
	Send(b []byte) error
	Close(code ws.StatusCode, reason string)
}

// Hub is the session registry: for each session id the set of connections
// currently subscribed to it. A session id has an entry only while it has at
// least one subscriber.
type Hub struct {
	sessions map[string]map[Subscriber]struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[Subscriber]struct{}),
		logger:   logger,
	}
}

// Join is idempotent: joining twice keeps one subscription.
func (h *Hub) Join(sessionID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.sessions[sessionID] = subs
	}
	subs[s] = struct{}{}
	h.logger.Debug("Subscriber joined", zap.String("session_id", sessionID), zap.String("client", s.ID()), zap.Int("count", len(subs)))
}

// Leave reports whether s was subscribed. The session entry is dropped with
// its last subscriber.
func (h *Hub) Leave(sessionID string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leaveLocked(sessionID, s)
}

func (h *Hub) leaveLocked(sessionID string, s Subscriber) bool {
	subs, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := subs[s]; !ok {
		return false
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.sessions, sessionID)
	}
	h.logger.Debug("Subscriber left", zap.String("session_id", sessionID), zap.String("client", s.ID()))
	return true
}

// Broadcast delivers event to every subscriber of sessionID and returns how
// many accepted it. Subscribers that fail are removed and closed after the
// pass, so one dead connection never blocks its siblings.
func (h *Hub) Broadcast(sessionID string, event interface{}) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("session_id", sessionID), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.sessions[sessionID]))
	for s := range h.sessions[sessionID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var failed []Subscriber
	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			h.logger.Warn("Dropping subscriber after failed send",
				zap.String("session_id", sessionID), zap.String("client", s.ID()), zap.Error(err))
			failed = append(failed, s)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, s := range failed {
			h.leaveLocked(sessionID, s)
		}
		h.mu.Unlock()
		for _, s := range failed {
			s.Close(ws.StatusGoingAway, "send failed")
		}
	}
	return delivered
}

// Count returns the live subscriber count of sessionID, 0 when absent.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Sessions returns how many session ids have at least one subscriber.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Connections returns the total number of subscriptions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.sessions {
		n += len(subs)
	}
	return n
}

// CloseAll disconnects every subscriber of sessionID and forgets the session.
func (h *Hub) CloseAll(sessionID string, code ws.StatusCode, reason string) {
	h.mu.Lock()
	subs := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for s := range subs {
		s.Close(code, reason)
	}
	if len(subs) > 0 {
		h.logger.Info("Closed session subscribers", zap.String("session_id", sessionID), zap.Int("count", len(subs)))
	}
}

// Shutdown closes every connection of every session.
func (h *Hub) Shutdown(code ws.StatusCode, reason string) {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]map[Subscriber]struct{})
	h.mu.Unlock()

	for _, subs := range sessions {
		for s := range subs {
			s.Close(code, reason)
		}
	}
}

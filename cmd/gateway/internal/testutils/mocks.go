package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/pkg/models"
)

// RecordedEvent is an event as a client would decode it.
type RecordedEvent struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal     string
	Events    []RecordedEvent
	RawBytes  []string
	FailSend  bool
	Closed    bool
	CloseCode ws.StatusCode
	Mu        sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Send(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailSend || m.Closed {
		return errors.New("client gone")
	}
	m.RawBytes = append(m.RawBytes, string(b))
	var ev RecordedEvent
	if err := json.Unmarshal(b, &ev); err == nil {
		m.Events = append(m.Events, ev)
	}
	return nil
}

func (m *MockClient) Close(code ws.StatusCode, reason string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	m.CloseCode = code
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) EventTypes() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	types := make([]string, 0, len(m.Events))
	for _, ev := range m.Events {
		types = append(types, ev.Type)
	}
	return types
}

// EventsOf returns the recorded events of one type.
func (m *MockClient) EventsOf(typ string) []RecordedEvent {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []RecordedEvent
	for _, ev := range m.Events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// MockStateStore is an in-memory StateStore.
type MockStateStore struct {
	States  map[string]models.SessionState
	History map[string][]models.SessionState
	Fail    bool
	Mu      sync.Mutex
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		States:  make(map[string]models.SessionState),
		History: make(map[string][]models.SessionState),
	}
}

func (m *MockStateStore) Save(ctx context.Context, state models.SessionState) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return errors.New("redis down")
	}
	m.States[state.SessionID] = state
	m.History[state.SessionID] = append(m.History[state.SessionID], state)
	return nil
}

func (m *MockStateStore) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return nil, errors.New("redis down")
	}
	s, ok := m.States[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MockStateStore) Delete(ctx context.Context, sessionID string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.States, sessionID)
	return nil
}

func (m *MockStateStore) Snapshot(sessionID string) (models.SessionState, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	s, ok := m.States[sessionID]
	return s, ok
}

// MockRateLimiter admits up to Limit attempts per address.
type MockRateLimiter struct {
	Limit  int
	Err    error
	counts map[string]int
	Mu     sync.Mutex
}

func (m *MockRateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[ip]++
	return m.counts[ip] <= m.Limit, nil
}

// MockGenerator answers each turn with a canned argument and streams it
// word by word.
type MockGenerator struct {
	Reply    func(req debate.TurnRequest) string
	FailTurn int // 1-based turn that returns an error, 0 never
	PanicOn  int // 1-based turn that panics, 0 never
	Mu       sync.Mutex
	Requests []debate.TurnRequest
}

func (m *MockGenerator) Generate(ctx context.Context, req debate.TurnRequest, tokens chan<- string) (string, error) {
	m.Mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Mu.Unlock()

	if req.Turn == m.FailTurn {
		return "", errors.New("provider timeout")
	}
	if req.Turn == m.PanicOn {
		panic("generator exploded")
	}

	text := string(req.Speaker) + " argument for turn " + strconv.Itoa(req.Turn)
	if m.Reply != nil {
		text = m.Reply(req)
	}
	for _, w := range strings.SplitAfter(text, " ") {
		select {
		case tokens <- w:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, nil
}

func (m *MockGenerator) Calls() []debate.TurnRequest {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]debate.TurnRequest(nil), m.Requests...)
}

// MockMarket returns a fixed context or error.
type MockMarket struct {
	Result *models.MarketContext
	Err    error
}

func (m *MockMarket) Context(ctx context.Context, asset string) (*models.MarketContext, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	c := *m.Result
	c.Asset = asset
	return &c, nil
}

// MockJournal records lifecycle transitions.
type MockJournal struct {
	Mu      sync.Mutex
	Entries []models.SessionState
}

func (m *MockJournal) Record(ctx context.Context, state models.SessionState) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Entries = append(m.Entries, state)
}

func (m *MockJournal) Statuses(sessionID string) []models.SessionStatus {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []models.SessionStatus
	for _, e := range m.Entries {
		if e.SessionID == sessionID {
			out = append(out, e.Status)
		}
	}
	return out
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

package hub_test

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/hub"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/protocol"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/testutils"
)

func setup() *hub.Hub {
	return hub.NewHub(zap.NewNop())
}

func TestHub_JoinLeave(t *testing.T) {
	h := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")

	h.Join("s1", c1)
	h.Join("s1", c2)
	h.Join("s1", c1)

	if h.Count("s1") != 2 {
		t.Errorf("Expected 2 subscribers, got %d", h.Count("s1"))
	}

	if !h.Leave("s1", c1) {
		t.Error("Leave should report a removed subscriber")
	}
	if h.Leave("s1", c1) {
		t.Error("Second Leave should be a no-op")
	}
	if h.Count("s1") != 1 {
		t.Errorf("Expected 1 subscriber, got %d", h.Count("s1"))
	}

	h.Leave("s1", c2)
	if h.Count("s1") != 0 || h.Sessions() != 0 {
		t.Errorf("Empty session should be removed, sessions=%d", h.Sessions())
	}

	if h.Leave("never", c1) {
		t.Error("Leave on unknown session should report false")
	}
}

func TestHub_BroadcastIsolation(t *testing.T) {
	h := setup()
	a1 := testutils.NewMockClient("a1")
	a2 := testutils.NewMockClient("a2")
	b1 := testutils.NewMockClient("b1")

	h.Join("A", a1)
	h.Join("A", a2)
	h.Join("B", b1)

	n := h.Broadcast("A", protocol.NewEvent(protocol.ActionTurnChange, protocol.TurnChangePayload{DebateID: "A", CurrentAgent: "bear"}))
	if n != 2 {
		t.Errorf("Expected delivery to 2 subscribers, got %d", n)
	}

	for _, c := range []*testutils.MockClient{a1, a2} {
		types := c.EventTypes()
		if len(types) != 1 || types[0] != protocol.ActionTurnChange {
			t.Errorf("Client %s got %v", c.IDVal, types)
		}
	}
	if len(b1.Events) != 0 {
		t.Errorf("Session B must not see session A events, got %d", len(b1.Events))
	}

	if h.Broadcast("nobody", protocol.NewEvent(protocol.ActionPing, nil)) != 0 {
		t.Error("Broadcast to an absent session should deliver to no one")
	}
}

func TestHub_BroadcastSameBytes(t *testing.T) {
	h := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")
	h.Join("s1", c1)
	h.Join("s1", c2)

	h.Broadcast("s1", protocol.NewEvent(protocol.ActionStatusUpdate, protocol.StatusPayload{DebateID: "s1", Status: "running"}))

	if c1.RawBytes[0] != c2.RawBytes[0] {
		t.Errorf("Subscribers should receive identical payloads:\n%s\n%s", c1.RawBytes[0], c2.RawBytes[0])
	}
}

func TestHub_BroadcastDropsFailedSubscribers(t *testing.T) {
	h := setup()
	good := testutils.NewMockClient("good")
	bad := testutils.NewMockClient("bad")
	bad.FailSend = true

	h.Join("s1", good)
	h.Join("s1", bad)

	n := h.Broadcast("s1", protocol.NewEvent(protocol.ActionPing, nil))
	if n != 1 {
		t.Errorf("Expected 1 delivery, got %d", n)
	}
	if h.Count("s1") != 1 {
		t.Errorf("Failed subscriber should be removed, count=%d", h.Count("s1"))
	}
	if !bad.IsClosed() {
		t.Error("Failed subscriber should be closed")
	}
	if good.IsClosed() {
		t.Error("Healthy subscriber must stay open")
	}

	h.Broadcast("s1", protocol.NewEvent(protocol.ActionPing, nil))
	if len(good.Events) != 2 {
		t.Errorf("Healthy subscriber should keep receiving, got %d", len(good.Events))
	}
}

func TestHub_BroadcastAllFailedRemovesSession(t *testing.T) {
	h := setup()
	bad := testutils.NewMockClient("bad")
	bad.FailSend = true
	h.Join("s1", bad)

	h.Broadcast("s1", protocol.NewEvent(protocol.ActionPing, nil))
	if h.Sessions() != 0 {
		t.Errorf("Session without subscribers should be gone, sessions=%d", h.Sessions())
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := setup()
	c1 := testutils.NewMockClient("c1")
	c2 := testutils.NewMockClient("c2")
	other := testutils.NewMockClient("other")

	h.Join("s1", c1)
	h.Join("s1", c2)
	h.Join("s2", other)

	h.CloseAll("s1", protocol.CloseDebateNotFound, protocol.CloseReason(protocol.CloseDebateNotFound))

	for _, c := range []*testutils.MockClient{c1, c2} {
		if !c.IsClosed() || c.CloseCode != protocol.CloseDebateNotFound {
			t.Errorf("Client %s: closed=%v code=%d", c.IDVal, c.Closed, c.CloseCode)
		}
	}
	if h.Count("s1") != 0 {
		t.Error("Session should be forgotten")
	}
	if other.IsClosed() || h.Count("s2") != 1 {
		t.Error("Other sessions must be untouched")
	}

	h.CloseAll("missing", protocol.CloseInternalError, "")
}

func TestHub_Shutdown(t *testing.T) {
	h := setup()
	clients := make([]*testutils.MockClient, 0, 4)
	for i := 0; i < 4; i++ {
		c := testutils.NewMockClient(fmt.Sprintf("c%d", i))
		clients = append(clients, c)
		h.Join(fmt.Sprintf("s%d", i%2), c)
	}

	if h.Connections() != 4 || h.Sessions() != 2 {
		t.Fatalf("Expected 4 connections in 2 sessions, got %d/%d", h.Connections(), h.Sessions())
	}

	h.Shutdown(1001, "server shutting down")

	for _, c := range clients {
		if !c.IsClosed() {
			t.Errorf("Client %s should be closed", c.IDVal)
		}
	}
	if h.Connections() != 0 {
		t.Error("Registry should be empty after shutdown")
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := setup()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := testutils.NewMockClient(fmt.Sprintf("c%d", i))
			sid := fmt.Sprintf("s%d", i%5)
			h.Join(sid, c)
			h.Broadcast(sid, protocol.NewEvent(protocol.ActionPing, nil))
			h.Count(sid)
			if i%2 == 0 {
				h.Leave(sid, c)
			}
		}(i)
	}
	wg.Wait()

	if h.Connections() != 25 {
		t.Errorf("Expected 25 remaining connections, got %d", h.Connections())
	}
}

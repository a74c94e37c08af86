package debate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/hub"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/testutils"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/models"
)

// blockingGenerator holds every turn until its context is cancelled.
type blockingGenerator struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingGenerator) Generate(ctx context.Context, req debate.TurnRequest, tokens chan<- string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func newService(gen debate.TurnGenerator, src debate.MarketContextSource, maxTurns int) (*debate.Service, *testutils.MockStateStore) {
	states := testutils.NewMockStateStore()
	engine := debate.NewEngine(gen, hub.NewHub(zap.NewNop()), states, nil, nil, zap.NewNop(), maxTurns)
	return debate.NewService(engine, src, states, zap.NewNop()), states
}

func freshMarket() *testutils.MockMarket {
	return &testutils.MockMarket{Result: &models.MarketContext{
		Price:       decimal.NewFromInt(3000),
		NewsSummary: []string{"upgrade shipped"},
	}}
}

func waitForStatus(t *testing.T, states *testutils.MockStateStore, id string, want models.SessionStatus) models.SessionState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := states.Snapshot(id); ok && s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s, _ := states.Snapshot(id)
	t.Fatalf("Session %s never reached %s, last state %+v", id, want, s)
	return s
}

func TestService_StartRunsInBackground(t *testing.T) {
	gen := &testutils.MockGenerator{}
	svc, states := newService(gen, freshMarket(), 4)
	defer svc.Shutdown(context.Background())

	res, err := svc.Start(context.Background(), "ethereum")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := uuid.Parse(res.DebateID); err != nil {
		t.Errorf("Session id is not a UUID: %q", res.DebateID)
	}
	if res.Asset != "ETH" || res.Status != models.StatusRunning || res.MaxTurns != 4 {
		t.Errorf("Unexpected result: %+v", res)
	}

	final := waitForStatus(t, states, res.DebateID, models.StatusCompleted)
	if final.CurrentTurn != 4 {
		t.Errorf("Expected 4 turns, got %d", final.CurrentTurn)
	}
	if first := states.History[res.DebateID][0]; first.Status != models.StatusReady {
		t.Errorf("First stored status should be ready, got %s", first.Status)
	}
}

func TestService_StartOutlivesRequest(t *testing.T) {
	svc, states := newService(&testutils.MockGenerator{}, freshMarket(), 2)
	defer svc.Shutdown(context.Background())

	reqCtx, cancel := context.WithCancel(context.Background())
	res, err := svc.Start(reqCtx, "BTC")
	cancel()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, states, res.DebateID, models.StatusCompleted)
}

func TestService_RefusesWithoutUsableMarketData(t *testing.T) {
	cases := []struct {
		name string
		src  *testutils.MockMarket
		want error
	}{
		{"unavailable", &testutils.MockMarket{Err: market.ErrMarketDataUnavailable}, market.ErrMarketDataUnavailable},
		{"stale", &testutils.MockMarket{Err: fmt.Errorf("%w: BTC", market.ErrStaleMarketData)}, market.ErrStaleMarketData},
		{"stale flag", &testutils.MockMarket{Result: &models.MarketContext{IsStale: true}}, market.ErrStaleMarketData},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &testutils.MockGenerator{}
			svc, states := newService(gen, tc.src, 6)

			_, err := svc.Start(context.Background(), "BTC")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if len(gen.Calls()) != 0 {
				t.Errorf("No turn may be generated, got %d calls", len(gen.Calls()))
			}
			if len(states.States) != 0 {
				t.Errorf("No session may be created, got %d", len(states.States))
			}
		})
	}
}

func TestService_UnsupportedAsset(t *testing.T) {
	svc, _ := newService(&testutils.MockGenerator{}, freshMarket(), 6)

	for _, asset := range []string{"", "DOGE", "btc-usd"} {
		if _, err := svc.Start(context.Background(), asset); !errors.Is(err, market.ErrUnsupportedAsset) {
			t.Errorf("Asset %q: expected ErrUnsupportedAsset, got %v", asset, err)
		}
	}
}

func TestService_ConcurrentStartsGetUniqueIDs(t *testing.T) {
	svc, states := newService(&testutils.MockGenerator{}, freshMarket(), 2)
	defer svc.Shutdown(context.Background())

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Start(context.Background(), "SOL")
			if err != nil {
				t.Errorf("Start failed: %v", err)
				return
			}
			ids <- res.DebateID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate session id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("Expected %d sessions, got %d", n, len(seen))
	}
	for id := range seen {
		waitForStatus(t, states, id, models.StatusCompleted)
	}
}

func TestService_RunReturnsTranscript(t *testing.T) {
	svc, _ := newService(&testutils.MockGenerator{}, freshMarket(), 6)

	res, err := svc.Run(context.Background(), "btc")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", res.Status)
	}
	if len(res.Messages) != 6 {
		t.Fatalf("Expected 6 messages, got %d", len(res.Messages))
	}
	if res.Messages[0].Speaker != models.SpeakerBull || res.Messages[5].Speaker != models.SpeakerBear {
		t.Errorf("Unexpected speakers: %s ... %s", res.Messages[0].Speaker, res.Messages[5].Speaker)
	}
}

func TestService_RunPropagatesGeneratorFailure(t *testing.T) {
	svc, _ := newService(&testutils.MockGenerator{FailTurn: 1}, freshMarket(), 6)

	_, err := svc.Run(context.Background(), "BTC")
	if !errors.Is(err, debate.ErrGenerator) {
		t.Errorf("Expected ErrGenerator, got %v", err)
	}
}

func TestService_ShutdownCancelsRunningSessions(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{})}
	svc, states := newService(gen, freshMarket(), 6)

	res, err := svc.Start(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Session never started generating")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown did not drain: %v", err)
	}

	final, _ := states.Snapshot(res.DebateID)
	if final.Status != models.StatusError {
		t.Errorf("Cancelled session should end in error, got %s", final.Status)
	}

	if _, err := svc.Start(context.Background(), "BTC"); !errors.Is(err, debate.ErrShuttingDown) {
		t.Errorf("Start after shutdown: expected ErrShuttingDown, got %v", err)
	}
}

func TestService_State(t *testing.T) {
	svc, states := newService(&testutils.MockGenerator{}, freshMarket(), 2)

	got, err := svc.State(context.Background(), "missing")
	if err != nil || got != nil {
		t.Errorf("Expected nil state for unknown id, got %+v, %v", got, err)
	}

	states.Save(context.Background(), models.SessionState{SessionID: "abc", Status: models.StatusRunning})
	got, _ = svc.State(context.Background(), "abc")
	if got == nil || got.Status != models.StatusRunning {
		t.Errorf("Expected running state, got %+v", got)
	}
}

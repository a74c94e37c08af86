package processor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/processor/internal/processor"
	"github.com/hazlamahedich/trade/cmd/processor/internal/testutils"
	"github.com/hazlamahedich/trade/pkg/config"
	"github.com/hazlamahedich/trade/pkg/models"
)

func tickMessages(t *testing.T, ticks ...models.PriceTick) []kafka.Message {
	t.Helper()
	var msgs []kafka.Message
	for _, tick := range ticks {
		val, err := json.Marshal(tick)
		if err != nil {
			t.Fatalf("marshal tick: %v", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(tick.Asset), Value: val})
	}
	return msgs
}

func TestProcessor_WorkerLogic(t *testing.T) {
	now := time.Now().UTC()
	msgs := tickMessages(t,
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64000), Provider: "coingecko", FetchedAt: now, SeqID: 1},
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64000), Provider: "coingecko", FetchedAt: now, SeqID: 1},
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64100), Provider: "coingecko", FetchedAt: now, SeqID: 2},
		models.PriceTick{Asset: "ETH", Price: decimal.NewFromInt(3000), Provider: "yahoo", FetchedAt: now, SeqID: 1},
	)

	mockReader := &testutils.MockKafkaReader{Messages: msgs}
	mockCache := &testutils.MockSnapshotWriter{}

	cfg := &config.Config{}
	cfg.Processor.NumWorkers = 2

	proc := processor.NewProcessor(cfg, zap.NewNop(), mockCache, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := proc.Run(ctx); err != nil {
		t.Logf("Processor stopped: %v", err)
	}

	mockCache.Mu.Lock()
	defer mockCache.Mu.Unlock()

	if len(mockCache.Snapshots) != 3 {
		t.Fatalf("Expected 3 cache writes, got %d", len(mockCache.Snapshots))
	}

	var lastBTC models.MarketSnapshot
	hasETH := false
	for _, snap := range mockCache.Snapshots {
		switch snap.Asset {
		case "BTC":
			lastBTC = snap
		case "ETH":
			hasETH = true
		}
		if snap.Currency != "usd" {
			t.Errorf("Expected default currency usd, got %q", snap.Currency)
		}
		if snap.News == nil {
			t.Error("News should never be nil in the cache")
		}
	}

	if !hasETH {
		t.Error("Missing cache write for ETH")
	}
	if !lastBTC.Price.Equal(decimal.NewFromInt(64100)) {
		t.Errorf("Expected latest BTC price 64100, got %s", lastBTC.Price)
	}
}

func TestProcessor_FeederRestart(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := tickMessages(t,
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64000), FetchedAt: t0, SeqID: 50},
		// Feeder restarted: counter back at 1, data newer
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64100), FetchedAt: t0.Add(time.Minute), SeqID: 1},
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(64200), FetchedAt: t0.Add(2 * time.Minute), SeqID: 2},
		// Redelivered older tick
		models.PriceTick{Asset: "BTC", Price: decimal.NewFromInt(63000), FetchedAt: t0, SeqID: 51},
	)

	mockCache := &testutils.MockSnapshotWriter{}
	proc := processor.NewProcessor(&config.Config{Processor: config.ProcessorConfig{NumWorkers: 1}}, zap.NewNop(), mockCache, &testutils.MockKafkaReader{Messages: msgs})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	proc.Run(ctx)

	mockCache.Mu.Lock()
	defer mockCache.Mu.Unlock()

	if len(mockCache.Snapshots) != 3 {
		t.Fatalf("Expected 3 cache writes after the restart, got %d", len(mockCache.Snapshots))
	}
	last := mockCache.Snapshots[len(mockCache.Snapshots)-1]
	if !last.Price.Equal(decimal.NewFromInt(64200)) {
		t.Errorf("Expected latest BTC price 64200, got %s", last.Price)
	}
}

func TestProcessor_InvalidJSON(t *testing.T) {
	msgs := []kafka.Message{
		{Key: []byte("BTC"), Value: []byte("{broken-json")},
	}

	mockReader := &testutils.MockKafkaReader{Messages: msgs}
	mockCache := &testutils.MockSnapshotWriter{}

	proc := processor.NewProcessor(&config.Config{Processor: config.ProcessorConfig{NumWorkers: 1}}, zap.NewNop(), mockCache, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	proc.Run(ctx)

	if mockCache.Count() > 0 {
		t.Error("Should not write the cache for invalid JSON")
	}
}

func TestProcessor_UnsupportedAsset(t *testing.T) {
	msgs := tickMessages(t, models.PriceTick{Asset: "DOGE", Price: decimal.NewFromInt(1), SeqID: 1})

	mockCache := &testutils.MockSnapshotWriter{}
	proc := processor.NewProcessor(&config.Config{Processor: config.ProcessorConfig{NumWorkers: 1}}, zap.NewNop(), mockCache, &testutils.MockKafkaReader{Messages: msgs})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	proc.Run(ctx)

	if mockCache.Count() > 0 {
		t.Error("Unsupported assets must not reach the cache")
	}
}

func TestProcessor_CacheWriteFailure(t *testing.T) {
	now := time.Now().UTC()
	msgs := tickMessages(t,
		models.PriceTick{Asset: "SOL", Price: decimal.NewFromInt(150), FetchedAt: now, SeqID: 7},
	)

	mockCache := &testutils.MockSnapshotWriter{ShouldFail: true}
	proc := processor.NewProcessor(&config.Config{Processor: config.ProcessorConfig{NumWorkers: 1}}, zap.NewNop(), mockCache, &testutils.MockKafkaReader{Messages: msgs})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	proc.Run(ctx)

	if mockCache.Count() != 0 {
		t.Errorf("Expected no recorded writes, got %d", mockCache.Count())
	}
}

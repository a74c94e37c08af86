package processor

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/pkg/config"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/models"
)

// Processor consumes price ticks and writes them into the market cache so that
// gateway reads find a fresh entry without calling a provider.
type Processor struct {
	cfg        *config.Config
	logger     Logger
	cache      SnapshotWriter
	reader     KafkaReader
	numWorkers int
}

func NewProcessor(cfg *config.Config, logger Logger, cache SnapshotWriter, reader KafkaReader) *Processor {
	return &Processor{
		cfg:        cfg,
		logger:     logger,
		cache:      cache,
		reader:     reader,
		numWorkers: cfg.Processor.NumWorkers,
	}
}

func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	go func() {
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same asset always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// A newer tick for the asset will follow; the cache only needs the latest.
				p.logger.Warn("Dropping slow tick", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")

	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Local state for deduplication (only works because of deterministic sharding)
	last := make(map[string]tickMark)

	for payload := range msgs {
		var tick models.PriceTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		asset, ok := market.NormalizeAsset(tick.Asset)
		if !ok {
			p.logger.Warn("Tick for unsupported asset", zap.String("asset", tick.Asset))
			continue
		}
		tick.Asset = asset

		if !last[asset].before(tick) {
			p.logger.Debug("Skipping duplicate tick", zap.String("asset", asset), zap.Int64("seq_id", tick.SeqID))
			continue
		}

		snap := tick.Snapshot()
		if snap.Currency == "" {
			snap.Currency = "usd"
		}
		if snap.News == nil {
			snap.News = []models.NewsItem{}
		}

		if err := p.cache.SetSnapshot(ctx, snap); err != nil {
			p.logger.Error("Cache write failed", zap.Error(err), zap.String("asset", asset))
			continue
		}
		p.logger.Debug("Processed",
			zap.String("asset", asset),
			zap.String("provider", strings.ToLower(tick.Provider)),
			zap.Int("worker_id", id),
			zap.Int64("seq_id", tick.SeqID),
		)
		last[asset] = tickMark{fetchedAt: tick.FetchedAt, seq: tick.SeqID}
	}
}

// tickMark is the newest tick a worker has written for an asset. Ticks are
// ordered by fetch time first; SeqID only breaks ties, since it restarts at 1
// whenever the feeder restarts.
type tickMark struct {
	fetchedAt time.Time
	seq       int64
}

func (m tickMark) before(t models.PriceTick) bool {
	if t.FetchedAt.Equal(m.fetchedAt) {
		return t.SeqID > m.seq
	}
	return t.FetchedAt.After(m.fetchedAt)
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}

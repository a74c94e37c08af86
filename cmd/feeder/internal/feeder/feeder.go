package feeder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/pkg/broker"
	"github.com/hazlamahedich/trade/pkg/models"
)

// Feeder polls the provider chain for every configured asset and publishes
// one tick per successful read. It never writes the cache itself.
type Feeder struct {
	logger      *zap.Logger
	writer      broker.KafkaWriter
	source      PriceSource
	assets      []string
	interval    time.Duration
	clock       Clock
	seqCounters map[string]int64
}

func NewFeeder(
	logger *zap.Logger,
	writer broker.KafkaWriter,
	source PriceSource,
	assets []string,
	interval time.Duration,
	clock Clock,
) *Feeder {
	return &Feeder{
		logger:      logger,
		writer:      writer,
		source:      source,
		assets:      assets,
		interval:    interval,
		clock:       clock,
		seqCounters: make(map[string]int64),
	}
}

func (f *Feeder) Run(ctx context.Context) {
	f.logger.Info("Feeder Started", zap.Strings("assets", f.assets), zap.Duration("interval", f.interval))

	for {
		f.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-f.clock.After(f.interval):
		}
	}
}

// PollOnce reads every asset once and returns how many ticks were published.
func (f *Feeder) PollOnce(ctx context.Context) int {
	msgs := make([]kafka.Message, 0, len(f.assets))

	for _, asset := range f.assets {
		if ctx.Err() != nil {
			return 0
		}
		snap, provider, ok := f.source.Fetch(ctx, asset)
		if !ok {
			f.logger.Warn("No provider returned a price", zap.String("asset", asset))
			continue
		}

		f.seqCounters[asset]++
		tick := models.PriceTick{
			Asset:     asset,
			Price:     snap.Price,
			Currency:  snap.Currency,
			Provider:  provider,
			News:      snap.News,
			FetchedAt: f.clock.Now(),
			SeqID:     f.seqCounters[asset],
		}

		payload, err := json.Marshal(tick)
		if err != nil {
			f.logger.Error("JSON Marshal Error", zap.Error(err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(asset), // Key ensures partition ordering
			Value: payload,
		})
	}

	if len(msgs) == 0 {
		return 0
	}

	if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
		f.logger.Error("Kafka Write Error", zap.Error(err), zap.Int("ticks", len(msgs)))
		return 0
	}
	f.logger.Debug("Published ticks", zap.Int("ticks", len(msgs)))
	return len(msgs)
}

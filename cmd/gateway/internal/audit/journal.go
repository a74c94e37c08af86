// Package audit publishes session lifecycle transitions to Kafka. Records
// carry status and position only, never argument text.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/pkg/broker"
	"github.com/hazlamahedich/trade/pkg/models"
)

// Record is the wire format of one lifecycle entry.
type Record struct {
	DebateID string               `json:"debateId"`
	Status   models.SessionStatus `json:"status"`
	Asset    string               `json:"asset"`
	Turn     int                  `json:"turn"`
	Speaker  models.Speaker       `json:"speaker,omitempty"`
	Error    string               `json:"error,omitempty"`
	At       time.Time            `json:"at"`
}

// KafkaJournal queues records and writes them from one background goroutine,
// so a slow broker never stalls a debate. When the queue is full new records
// are dropped and logged.
type KafkaJournal struct {
	writer broker.KafkaWriter
	logger *zap.Logger
	queue  chan kafka.Message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewKafkaJournal(writer broker.KafkaWriter, logger *zap.Logger, buffer int) *KafkaJournal {
	if buffer <= 0 {
		buffer = 256
	}
	j := &KafkaJournal{
		writer: writer,
		logger: logger,
		queue:  make(chan kafka.Message, buffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *KafkaJournal) Record(ctx context.Context, state models.SessionState) {
	rec := Record{
		DebateID: state.SessionID,
		Status:   state.Status,
		Asset:    state.Asset,
		Turn:     state.CurrentTurn,
		Speaker:  state.CurrentSpeaker,
		Error:    state.Error,
		At:       state.UpdatedAt,
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		j.logger.Error("Failed to encode journal record", zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(state.SessionID), Value: b}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- msg:
	default:
		j.logger.Warn("Journal queue full, dropping record",
			zap.String("session_id", state.SessionID),
			zap.String("status", string(state.Status)))
	}
}

func (j *KafkaJournal) run() {
	defer close(j.done)
	for msg := range j.queue {
		batch := []kafka.Message{msg}
	drain:
		for len(batch) < cap(j.queue) {
			select {
			case m, ok := <-j.queue:
				if !ok {
					break drain
				}
				batch = append(batch, m)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := j.writer.WriteMessages(ctx, batch...); err != nil {
			j.logger.Error("Failed to write journal records", zap.Int("count", len(batch)), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting records, flushes the queue and closes the writer.
func (j *KafkaJournal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return j.writer.Close()
}

// Nop discards every record. It is used when no events topic is configured.
type Nop struct{}

func (Nop) Record(context.Context, models.SessionState) {}

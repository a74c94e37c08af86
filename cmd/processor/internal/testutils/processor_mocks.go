package testutils

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/hazlamahedich/trade/pkg/models"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// Returning DeadlineExceeded is a clean way to stop the processor loop in tests
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockSnapshotWriter records every snapshot written to the cache.
type MockSnapshotWriter struct {
	Mu         sync.Mutex
	Snapshots  []models.MarketSnapshot
	ShouldFail bool
}

func (m *MockSnapshotWriter) SetSnapshot(ctx context.Context, snap models.MarketSnapshot) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("redis unavailable")
	}
	m.Snapshots = append(m.Snapshots, snap)
	return nil
}

func (m *MockSnapshotWriter) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Snapshots)
}

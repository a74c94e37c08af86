package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/hazlamahedich/trade/pkg/models"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

// MockClock fires every After immediately, so Run loops as fast as the CPU allows.
type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.Mu.Lock()
	m.CurrentTime = m.CurrentTime.Add(d)
	now := m.CurrentTime
	m.Mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// MockPriceSource returns a fixed price for the assets in Prices.
type MockPriceSource struct {
	Prices   map[string]decimal.Decimal
	Provider string
	Mu       sync.Mutex
	Calls    int
}

func (m *MockPriceSource) Fetch(ctx context.Context, asset string) (models.MarketSnapshot, string, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	price, ok := m.Prices[asset]
	if !ok {
		return models.MarketSnapshot{}, "", false
	}
	return models.MarketSnapshot{
		Asset:    asset,
		Price:    price,
		Currency: "usd",
		News:     []models.NewsItem{},
	}, m.Provider, true
}

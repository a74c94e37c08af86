package feeder

import (
	"context"
	"time"

	"github.com/hazlamahedich/trade/pkg/models"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// PriceSource is satisfied by market.Chain.
type PriceSource interface {
	Fetch(ctx context.Context, asset string) (models.MarketSnapshot, string, bool)
}

type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now().UTC() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

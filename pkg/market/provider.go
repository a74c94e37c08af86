package market

import (
	"context"
	"time"

	"github.com/hazlamahedich/trade/pkg/models"
)

// Provider is an upstream market data source. Implementations absorb their own
// failures: a timeout, bad status or unreadable payload is reported as "no data".
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, asset string) (models.PriceRecord, bool)
	FetchNews(ctx context.Context, asset string) []models.NewsItem
}

// Clock makes staleness checks deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Chain tries providers in priority order.
type Chain []Provider

// Fetch returns a snapshot from the first provider that has a price. News comes
// only from that same provider.
func (c Chain) Fetch(ctx context.Context, asset string) (models.MarketSnapshot, string, bool) {
	for _, p := range c {
		rec, ok := p.FetchPrice(ctx, asset)
		if !ok {
			continue
		}
		news := p.FetchNews(ctx, asset)
		if news == nil {
			news = []models.NewsItem{}
		}
		currency := rec.Currency
		if currency == "" {
			currency = "usd"
		}
		return models.MarketSnapshot{
			Asset:     asset,
			Price:     rec.Price,
			Currency:  currency,
			News:      news,
			FetchedAt: rec.FetchedAt,
		}, p.Name(), true
	}
	return models.MarketSnapshot{}, "", false
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is a single provider reading published on the market tick topic.
type PriceTick struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Provider  string          `json:"provider"`
	News      []NewsItem      `json:"news,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
	SeqID     int64           `json:"seq_id"` // monotonic counter per asset
}

// Snapshot converts the tick into the snapshot shape stored by the market cache.
func (t PriceTick) Snapshot() MarketSnapshot {
	return MarketSnapshot{
		Asset:     t.Asset,
		Price:     t.Price,
		Currency:  t.Currency,
		News:      t.News,
		FetchedAt: t.FetchedAt,
	}
}

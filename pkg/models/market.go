package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is a normalized price reading for one asset.
type PriceRecord struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// NewsItem is a headline attached to an asset. Lists keep provider order.
type NewsItem struct {
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketSnapshot combines the cached price and news of an asset with a
// staleness verdict computed at read time.
type MarketSnapshot struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	News      []NewsItem      `json:"news"`
	IsStale   bool            `json:"isStale"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Age reports how old the snapshot is at now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// MarketMeta describes how a snapshot was obtained.
type MarketMeta struct {
	LatencyMS    int64  `json:"latencyMs"`
	Provider     string `json:"provider,omitempty"`
	StaleWarning bool   `json:"staleWarning,omitempty"`
}

// MarketContext is the reduced view handed to the turn generator.
type MarketContext struct {
	Asset       string          `json:"asset"`
	Price       decimal.Decimal `json:"price"`
	NewsSummary []string        `json:"newsSummary"`
	IsStale     bool            `json:"isStale"`
}

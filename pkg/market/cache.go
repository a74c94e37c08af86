package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hazlamahedich/trade/pkg/models"
)

const keyPrefix = "market:"

// Cache stores the latest snapshot per asset.
type Cache interface {
	GetSnapshot(ctx context.Context, asset string) (*models.MarketSnapshot, error)
	SetSnapshot(ctx context.Context, snap models.MarketSnapshot) error
}

// Compile-time check to ensure RedisCache implements Cache
var _ Cache = (*RedisCache)(nil)

// RedisCache keeps price and news under separate keys, each with its own expiry.
// Retention is independent of freshness: an entry may outlive the freshness
// window so that it can still be served as a stale fallback.
type RedisCache struct {
	client    redis.Cmdable
	retention time.Duration
	freshness time.Duration
	clock     Clock
}

func NewRedisCache(client redis.Cmdable, retention, freshness time.Duration, clock Clock) *RedisCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RedisCache{
		client:    client,
		retention: retention,
		freshness: freshness,
		clock:     clock,
	}
}

type cachedPrice struct {
	Price     string `msgpack:"p"`
	Currency  string `msgpack:"c"`
	FetchedAt int64  `msgpack:"t"` // unix nano
}

type cachedNews struct {
	Title     string `msgpack:"title"`
	URL       string `msgpack:"url,omitempty"`
	Source    string `msgpack:"source"`
	Timestamp int64  `msgpack:"ts"` // unix nano
}

func priceKey(asset string) string { return keyPrefix + strings.ToLower(asset) + ":price" }
func newsKey(asset string) string  { return keyPrefix + strings.ToLower(asset) + ":news" }

// GetSnapshot returns nil without error when no price is cached.
func (c *RedisCache) GetSnapshot(ctx context.Context, asset string) (*models.MarketSnapshot, error) {
	vals, err := c.client.MGet(ctx, priceKey(asset), newsKey(asset)).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", asset, err)
	}

	rawPrice, ok := vals[0].(string)
	if !ok || rawPrice == "" {
		return nil, nil
	}

	var p cachedPrice
	if err := msgpack.Unmarshal([]byte(rawPrice), &p); err != nil {
		return nil, fmt.Errorf("decode price %s: %w", asset, err)
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, fmt.Errorf("decode price %s: %w", asset, err)
	}

	news := []models.NewsItem{}
	if rawNews, ok := vals[1].(string); ok && rawNews != "" {
		var items []cachedNews
		if err := msgpack.Unmarshal([]byte(rawNews), &items); err != nil {
			return nil, fmt.Errorf("decode news %s: %w", asset, err)
		}
		for _, it := range items {
			news = append(news, models.NewsItem{
				Title:     it.Title,
				URL:       it.URL,
				Source:    it.Source,
				Timestamp: time.Unix(0, it.Timestamp).UTC(),
			})
		}
	}

	snap := &models.MarketSnapshot{
		Asset:     asset,
		Price:     price,
		Currency:  p.Currency,
		News:      news,
		FetchedAt: time.Unix(0, p.FetchedAt).UTC(),
	}
	snap.IsStale = IsStale(snap.FetchedAt, c.clock.Now(), c.freshness)
	return snap, nil
}

// SetSnapshot writes price and news in one pipeline.
func (c *RedisCache) SetSnapshot(ctx context.Context, snap models.MarketSnapshot) error {
	if snap.Asset == "" {
		return errors.New("snapshot without asset")
	}

	price, err := msgpack.Marshal(cachedPrice{
		Price:     snap.Price.String(),
		Currency:  snap.Currency,
		FetchedAt: snap.FetchedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode price %s: %w", snap.Asset, err)
	}

	items := make([]cachedNews, 0, len(snap.News))
	for _, n := range snap.News {
		items = append(items, cachedNews{
			Title:     n.Title,
			URL:       n.URL,
			Source:    n.Source,
			Timestamp: n.Timestamp.UnixNano(),
		})
	}
	news, err := msgpack.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode news %s: %w", snap.Asset, err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, priceKey(snap.Asset), price, c.retention)
	pipe.Set(ctx, newsKey(snap.Asset), news, c.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store snapshot %s: %w", snap.Asset, err)
	}
	return nil
}

// IsStale reports whether data fetched at fetchedAt has reached window at now.
// Data exactly window old is stale.
func IsStale(fetchedAt, now time.Time, window time.Duration) bool {
	return now.Sub(fetchedAt) >= window
}

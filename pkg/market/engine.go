package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hazlamahedich/trade/pkg/models"
)

const (
	ProviderCache  = "cache"
	contextTopNews = 3
)

var (
	ErrUnsupportedAsset      = errors.New("unsupported asset")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrStaleMarketData       = errors.New("market data is stale")
)

// GetOptions are the failure-injection switches of a market query.
type GetOptions struct {
	BypassCache   bool
	ForceDegraded bool
}

// Engine answers "current data for asset X" from cache and providers.
type Engine struct {
	cache     Cache
	providers Chain
	freshness time.Duration
	clock     Clock
	logger    *zap.Logger
	group     singleflight.Group
}

func NewEngine(cache Cache, providers Chain, freshness time.Duration, clock Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		cache:     cache,
		providers: providers,
		freshness: freshness,
		clock:     clock,
		logger:    logger,
	}
}

// Get never returns an error: provider and cache failures degrade to a stale
// snapshot or to nil.
func (e *Engine) Get(ctx context.Context, asset string, opts GetOptions) (*models.MarketSnapshot, models.MarketMeta) {
	start := time.Now()
	meta := models.MarketMeta{}
	defer func() {
		e.logger.Debug("Market query served",
			zap.String("asset", asset),
			zap.String("provider", meta.Provider),
			zap.Bool("stale_warning", meta.StaleWarning),
		)
	}()

	var cached *models.MarketSnapshot
	if !opts.BypassCache {
		cached = e.readCache(ctx, asset)
		if cached != nil && !cached.IsStale && !opts.ForceDegraded {
			meta.Provider = ProviderCache
			meta.LatencyMS = elapsedMS(start)
			return cached, meta
		}
	}

	if opts.ForceDegraded {
		return e.degraded(cached, &meta, start)
	}

	snap, provider, ok := e.fetch(ctx, asset)
	if ok {
		meta.Provider = provider
		meta.LatencyMS = elapsedMS(start)
		return snap, meta
	}

	// Every provider failed. A bypassed cache is still a valid last resort.
	if cached == nil && opts.BypassCache {
		cached = e.readCache(ctx, asset)
	}
	e.logger.Warn("All market providers failed", zap.String("asset", asset), zap.Bool("cache_fallback", cached != nil))
	return e.degraded(cached, &meta, start)
}

// Context reduces the current snapshot to what a debate turn needs. It refuses
// missing and stale data.
func (e *Engine) Context(ctx context.Context, asset string) (*models.MarketContext, error) {
	sym, ok := NormalizeAsset(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAsset, asset)
	}

	snap, _ := e.Get(ctx, sym, GetOptions{})
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketDataUnavailable, sym)
	}
	if snap.IsStale || IsStale(snap.FetchedAt, e.clock.Now(), e.freshness) {
		return nil, fmt.Errorf("%w: %s fetched %s ago", ErrStaleMarketData, sym, snap.Age(e.clock.Now()).Round(time.Second))
	}

	titles := make([]string, 0, contextTopNews)
	for _, n := range snap.News {
		if len(titles) == contextTopNews {
			break
		}
		titles = append(titles, n.Title)
	}

	return &models.MarketContext{
		Asset:       snap.Asset,
		Price:       snap.Price,
		NewsSummary: titles,
		IsStale:     snap.IsStale,
	}, nil
}

func (e *Engine) degraded(cached *models.MarketSnapshot, meta *models.MarketMeta, start time.Time) (*models.MarketSnapshot, models.MarketMeta) {
	meta.LatencyMS = elapsedMS(start)
	if cached == nil {
		return nil, *meta
	}
	out := *cached
	out.IsStale = true
	meta.Provider = ProviderCache
	meta.StaleWarning = true
	return &out, *meta
}

type fetchResult struct {
	snap     models.MarketSnapshot
	provider string
}

// fetch collapses concurrent misses for the same asset into one chain call.
// The shared call is detached from the first caller's cancellation; provider
// timeouts bound it.
func (e *Engine) fetch(ctx context.Context, asset string) (*models.MarketSnapshot, string, bool) {
	ctx = context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(asset, func() (interface{}, error) {
		snap, provider, ok := e.providers.Fetch(ctx, asset)
		if !ok {
			return nil, ErrMarketDataUnavailable
		}
		snap.FetchedAt = e.clock.Now()
		snap.IsStale = false
		if err := e.cache.SetSnapshot(ctx, snap); err != nil {
			e.logger.Warn("Failed to cache market snapshot", zap.String("asset", asset), zap.Error(err))
		}
		return fetchResult{snap: snap, provider: provider}, nil
	})
	if err != nil {
		return nil, "", false
	}
	res := v.(fetchResult)
	snap := res.snap
	snap.News = make([]models.NewsItem, len(res.snap.News))
	copy(snap.News, res.snap.News)
	return &snap, res.provider, true
}

func (e *Engine) readCache(ctx context.Context, asset string) *models.MarketSnapshot {
	snap, err := e.cache.GetSnapshot(ctx, asset)
	if err != nil {
		e.logger.Warn("Market cache read failed", zap.String("asset", asset), zap.Error(err))
		return nil
	}
	return snap
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/pkg/models"
)

const (
	defaultCoinGeckoURL  = "https://api.coingecko.com/api/v3"
	defaultFetchTimeout  = 10 * time.Second
	coinGeckoCeilingKey  = "coingecko"
	maxNewsTitleRunes    = 200
	coinGeckoNewsPerPage = "5"
)

// CallLimiter is the process-wide call ceiling shared by every CoinGecko client.
type CallLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// CoinGecko is the primary provider. It supplies both prices and news.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	limiter    CallLimiter
	logger     *zap.Logger
	clock      Clock
}

// ProviderOption customises a provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	clock      Clock
}

// WithBaseURL points the provider at another endpoint (used by tests).
func WithBaseURL(u string) ProviderOption {
	return func(o *providerOptions) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithClock(c Clock) ProviderOption {
	return func(o *providerOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(defaultURL string, opts []ProviderOption) providerOptions {
	o := providerOptions{baseURL: defaultURL, timeout: defaultFetchTimeout, clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

func NewCoinGecko(limiter CallLimiter, logger *zap.Logger, opts ...ProviderOption) *CoinGecko {
	o := buildOptions(defaultCoinGeckoURL, opts)
	return &CoinGecko{
		baseURL:    o.baseURL,
		httpClient: o.httpClient,
		limiter:    limiter,
		logger:     logger,
		clock:      o.clock,
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

type coinGeckoPrice struct {
	USD           *decimal.Decimal `json:"usd"`
	LastUpdatedAt int64            `json:"last_updated_at"`
}

type coinGeckoStatusUpdates struct {
	StatusUpdates []struct {
		Description string `json:"description"`
		Permalink   string `json:"permalink"`
		CreatedAt   string `json:"created_at"`
	} `json:"status_updates"`
}

func (c *CoinGecko) FetchPrice(ctx context.Context, asset string) (models.PriceRecord, bool) {
	coinID, ok := c.coinID(asset)
	if !ok {
		return models.PriceRecord{}, false
	}
	if !c.acquire(ctx, asset) {
		return models.PriceRecord{}, false
	}

	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "usd")
	q.Set("include_last_updated_at", "true")

	var body map[string]coinGeckoPrice
	if err := c.getJSON(ctx, "/simple/price", q, &body); err != nil {
		c.logger.Warn("CoinGecko price fetch failed", zap.String("asset", asset), zap.Error(err))
		return models.PriceRecord{}, false
	}

	entry, ok := body[coinID]
	if !ok || entry.USD == nil {
		c.logger.Warn("CoinGecko price missing from payload", zap.String("asset", asset))
		return models.PriceRecord{}, false
	}

	return models.PriceRecord{
		Asset:     asset,
		Price:     *entry.USD,
		Currency:  "usd",
		FetchedAt: c.clock.Now(),
	}, true
}

func (c *CoinGecko) FetchNews(ctx context.Context, asset string) []models.NewsItem {
	coinID, ok := c.coinID(asset)
	if !ok {
		return nil
	}
	if !c.acquire(ctx, asset) {
		return nil
	}

	q := url.Values{}
	q.Set("category", "general")
	q.Set("project_ids", coinID)
	q.Set("per_page", coinGeckoNewsPerPage)

	var body coinGeckoStatusUpdates
	if err := c.getJSON(ctx, "/status_updates", q, &body); err != nil {
		c.logger.Warn("CoinGecko news fetch failed", zap.String("asset", asset), zap.Error(err))
		return nil
	}

	items := make([]models.NewsItem, 0, len(body.StatusUpdates))
	for _, u := range body.StatusUpdates {
		ts := c.clock.Now()
		if u.CreatedAt != "" {
			if parsed, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
				ts = parsed.UTC()
			} else {
				c.logger.Debug("Unparseable news timestamp", zap.String("created_at", u.CreatedAt))
			}
		}
		items = append(items, models.NewsItem{
			Title:     truncateRunes(u.Description, maxNewsTitleRunes),
			URL:       u.Permalink,
			Source:    "coingecko",
			Timestamp: ts,
		})
	}
	return items
}

func (c *CoinGecko) coinID(asset string) (string, bool) {
	sym, ok := NormalizeAsset(asset)
	if !ok {
		return "", false
	}
	return assetCatalog[sym].coinGecko, true
}

// acquire charges one call against the shared ceiling. An unreachable counter
// store does not block the upstream call.
func (c *CoinGecko) acquire(ctx context.Context, asset string) bool {
	if c.limiter == nil {
		return true
	}
	ok, err := c.limiter.Allow(ctx, coinGeckoCeilingKey)
	if err != nil {
		c.logger.Warn("CoinGecko ceiling check failed, proceeding", zap.Error(err))
		return true
	}
	if !ok {
		c.logger.Warn("CoinGecko call ceiling reached", zap.String("asset", asset))
	}
	return ok
}

func (c *CoinGecko) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

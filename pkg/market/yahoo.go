package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/pkg/models"
)

const defaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Yahoo is the secondary provider. It has no news feed.
type Yahoo struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	clock      Clock
}

func NewYahoo(logger *zap.Logger, opts ...ProviderOption) *Yahoo {
	o := buildOptions(defaultYahooURL, opts)
	return &Yahoo{
		baseURL:    o.baseURL,
		httpClient: o.httpClient,
		logger:     logger,
		clock:      o.clock,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *decimal.Decimal `json:"regularMarketPrice"`
				Currency           string           `json:"currency"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

func (y *Yahoo) FetchPrice(ctx context.Context, asset string) (models.PriceRecord, bool) {
	sym, ok := NormalizeAsset(asset)
	if !ok {
		return models.PriceRecord{}, false
	}
	symbol := assetCatalog[sym].yahoo

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "1d")

	chart, err := y.fetchChart(ctx, symbol, q)
	if err != nil {
		y.logger.Warn("Yahoo price fetch failed", zap.String("asset", asset), zap.Error(err))
		return models.PriceRecord{}, false
	}
	if len(chart.Chart.Result) == 0 || chart.Chart.Result[0].Meta.RegularMarketPrice == nil {
		y.logger.Warn("Yahoo price missing from payload", zap.String("asset", asset))
		return models.PriceRecord{}, false
	}

	meta := chart.Chart.Result[0].Meta
	currency := strings.ToLower(strings.TrimSpace(meta.Currency))
	if currency == "" {
		currency = "usd"
	}

	return models.PriceRecord{
		Asset:     asset,
		Price:     *meta.RegularMarketPrice,
		Currency:  currency,
		FetchedAt: y.clock.Now(),
	}, true
}

func (y *Yahoo) FetchNews(ctx context.Context, asset string) []models.NewsItem {
	return nil
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol string, q url.Values) (*yahooChart, error) {
	endpoint := y.baseURL + "/" + url.PathEscape(symbol) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return &chart, nil
}

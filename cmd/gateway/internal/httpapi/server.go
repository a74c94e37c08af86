// Package httpapi serves the gateway's REST endpoints, the debate stream route
// and the Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/metrics"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/models"
)

const version = "1.0.0"

type MarketSource interface {
	Get(ctx context.Context, asset string, opts market.GetOptions) (*models.MarketSnapshot, models.MarketMeta)
}

type Debates interface {
	Start(ctx context.Context, asset string) (*debate.StartResult, error)
	Run(ctx context.Context, asset string) (*debate.StartResult, error)
	State(ctx context.Context, sessionID string) (*models.SessionState, error)
}

type StreamHandler interface {
	ServeStream(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Pinger reports whether the shared store is reachable.
type Pinger func(ctx context.Context) error

type Deps struct {
	Market     MarketSource
	Debates    Debates
	Stream     StreamHandler
	Health     Pinger
	Gatherer   prometheus.Gatherer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Production bool
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/{asset}/data", s.handleMarketData)
	mux.HandleFunc("POST /api/debate/start", s.handleDebateStart)
	mux.HandleFunc("GET /api/debate/{id}/state", s.handleDebateState)
	mux.HandleFunc("GET /ws/debate/{id}", s.handleStream)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return requestLogger(s.deps.Logger, mux)
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("asset")
	asset, ok := market.NormalizeAsset(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeInvalidAsset, unsupportedAssetMessage(raw), nil)
		return
	}

	snap, meta := s.deps.Market.Get(r.Context(), asset, s.mockOptions(r))
	s.deps.Metrics.MarketRequest(meta.Provider, meta.LatencyMS)

	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, CodeMarketDataUnavailable, "Market data temporarily unavailable", meta)
		return
	}
	writeData(w, snap, meta)
}

// mockOptions reads the failure-injection headers. They are ignored in
// production.
func (s *Server) mockOptions(r *http.Request) market.GetOptions {
	if s.deps.Production {
		return market.GetOptions{}
	}
	on := func(h string) bool { return strings.EqualFold(r.Header.Get(h), "true") }
	allDown := on("X-Mock-All-Down")
	return market.GetOptions{
		ForceDegraded: on("X-Mock-Providers-Down") || allDown,
		BypassCache:   on("X-Mock-No-Cache") || allDown,
	}
}

type startRequest struct {
	Asset string `json:"asset"`
}

type debateMeta struct {
	LatencyMS int64 `json:"latencyMs"`
}

func (s *Server) handleDebateStart(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Request body must be JSON with an asset field", nil)
		return
	}

	var (
		res *debate.StartResult
		err error
	)
	if r.URL.Query().Get("wait") == "true" {
		res, err = s.deps.Debates.Run(r.Context(), req.Asset)
	} else {
		res, err = s.deps.Debates.Start(r.Context(), req.Asset)
	}
	if err != nil {
		s.writeDebateError(w, req.Asset, err)
		return
	}
	writeData(w, res, debateMeta{LatencyMS: time.Since(start).Milliseconds()})
}

func (s *Server) writeDebateError(w http.ResponseWriter, asset string, err error) {
	switch {
	case errors.Is(err, market.ErrUnsupportedAsset):
		writeError(w, http.StatusBadRequest, CodeInvalidAsset, unsupportedAssetMessage(asset), nil)
	case errors.Is(err, market.ErrStaleMarketData):
		writeError(w, http.StatusBadRequest, CodeStaleMarketData, "Market data is older than 60 seconds. Cannot start debate.", nil)
	case errors.Is(err, market.ErrMarketDataUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeMarketDataUnavailable, "Market data temporarily unavailable", nil)
	case errors.Is(err, debate.ErrGenerator):
		s.deps.Logger.Error("LLM provider error", zap.String("asset", asset), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeLLMProviderError, "LLM service temporarily unavailable", nil)
	default:
		s.deps.Logger.Error("Unexpected error starting debate", zap.String("asset", asset), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeInternalError, "Service temporarily unavailable", nil)
	}
}

func (s *Server) handleDebateState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.deps.Debates.State(r.Context(), id)
	if err != nil {
		s.deps.Logger.Warn("Failed to load session state", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeInternalError, "Service temporarily unavailable", nil)
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, CodeDebateNotFound, "Debate not found", nil)
		return
	}
	writeData(w, state, nil)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.deps.Stream.ServeStream(w, r, r.PathValue("id"))
}

type healthData struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	data := healthData{Status: "healthy", Redis: "connected"}
	if err := s.deps.Health(ctx); err != nil {
		s.deps.Logger.Error("Redis health check failed", zap.Error(err))
		data = healthData{Status: "unhealthy", Redis: "disconnected"}
	}
	writeData(w, data, map[string]string{"version": version})
}

func unsupportedAssetMessage(asset string) string {
	return fmt.Sprintf("Asset '%s' is not supported. Supported assets: BTC, ETH, SOL, bitcoin, ethereum, solana", asset)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/audit"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/gateway"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/httpapi"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/hub"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/llm"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/metrics"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/repository"
	"github.com/hazlamahedich/trade/pkg/broker"
	"github.com/hazlamahedich/trade/pkg/config"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/ratelimit"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	// 3. Redis: market cache, session state, admission windows
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable at startup", zap.Error(err))
	}

	store := repository.NewRedisStore(rdb, cfg.Debate.StateTTL, cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)

	// 4. Market data engine
	ceiling := ratelimit.NewWindow(rdb, "market:rate_limit:", cfg.Market.CoinGeckoMaxCalls, cfg.Market.CoinGeckoWindow)
	chain := market.Chain{
		market.NewCoinGecko(ceiling, logger,
			market.WithBaseURL(cfg.Market.CoinGeckoURL), market.WithTimeout(cfg.Market.ProviderTimeout)),
		market.NewYahoo(logger,
			market.WithBaseURL(cfg.Market.YahooURL), market.WithTimeout(cfg.Market.ProviderTimeout)),
	}
	cache := market.NewRedisCache(rdb, cfg.Market.CacheRetention, cfg.Market.FreshnessWindow, nil)
	marketEngine := market.NewEngine(cache, chain, cfg.Market.FreshnessWindow, nil, logger)

	// 5. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 6. Session registry
	wsHub := hub.NewHub(logger)
	m.RegisterGauges(reg, wsHub)

	// 7. Turn generator
	generator, err := newGenerator(cfg, logger)
	if err != nil {
		logger.Fatal("Turn generator unavailable", zap.Error(err))
	}

	// 8. Lifecycle journal
	journal, closeJournal := newJournal(cfg, logger)

	engine := debate.NewEngine(generator, wsHub, store, journal, m, logger, cfg.Debate.MaxTurns)
	svc := debate.NewService(engine, marketEngine, store, logger)

	streams := gateway.NewHandler(
		wsHub, store, store,
		gateway.NewStaticTokenAuthenticator(cfg.Gateway.AuthTokens),
		gateway.NewOriginPolicy(cfg.Gateway.AllowedOrigins, cfg.App.IsProduction()),
		m, logger,
		gateway.Timeouts{
			WriteWait:   cfg.Gateway.WriteWait,
			ReadTimeout: cfg.Gateway.ReadTimeout,
			Heartbeat:   cfg.Gateway.HeartbeatInterval,
		},
	)

	api := httpapi.NewServer(httpapi.Deps{
		Market:     marketEngine,
		Debates:    svc,
		Stream:     streams,
		Health:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		Gatherer:   reg,
		Metrics:    m,
		Logger:     logger,
		Production: cfg.App.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 9. Run until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", zap.Error(err))
		}
		if err := svc.Shutdown(shutdownCtx); err != nil {
			logger.Error("Debates did not drain", zap.Error(err))
		}
		wsHub.Shutdown(ws.StatusGoingAway, "Server shutting down")
		if err := closeJournal(shutdownCtx); err != nil {
			logger.Error("Error closing journal", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (debate.TurnGenerator, error) {
	if cfg.LLM.APIKey != "" {
		logger.Info("Using OpenAI turn generator", zap.String("model", cfg.LLM.Model))
		return llm.NewOpenAIGenerator(cfg.LLM, logger), nil
	}
	if cfg.App.IsProduction() {
		return nil, errors.New("llm.api_key is required in production")
	}
	logger.Warn("No LLM key configured, using offline turn generator")
	return llm.NewOfflineGenerator(40 * time.Millisecond), nil
}

func newJournal(cfg *config.Config, logger *zap.Logger) (debate.Journal, func(context.Context) error) {
	if cfg.Kafka.EventsTopic == "" {
		return audit.Nop{}, func(context.Context) error { return nil }
	}

	tc := broker.NewTopicCreator(logger, &broker.RealKafkaDialer{Dialer: kafka.DefaultDialer}, broker.RealSleeper{}, 4)
	if !tc.Create(context.Background(), cfg.Kafka.Brokers, cfg.Kafka.EventsTopic) {
		logger.Warn("Events topic not confirmed, journal writes may fail", zap.String("topic", cfg.Kafka.EventsTopic))
	}

	j := audit.NewKafkaJournal(broker.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic), logger, 1024)
	return j, j.Close
}

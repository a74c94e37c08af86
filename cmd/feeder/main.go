package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/feeder/internal/feeder"
	"github.com/hazlamahedich/trade/pkg/broker"
	"github.com/hazlamahedich/trade/pkg/config"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/ratelimit"
)

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

	// 3. Redis backs the CoinGecko call ceiling shared with the gateway
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable, CoinGecko ceiling will fail open", zap.Error(err))
	}

	ceiling := ratelimit.NewWindow(rdb, "market:rate_limit:", cfg.Market.CoinGeckoMaxCalls, cfg.Market.CoinGeckoWindow)
	chain := market.Chain{
		market.NewCoinGecko(ceiling, logger,
			market.WithBaseURL(cfg.Market.CoinGeckoURL), market.WithTimeout(cfg.Market.ProviderTimeout)),
		market.NewYahoo(logger,
			market.WithBaseURL(cfg.Market.YahooURL), market.WithTimeout(cfg.Market.ProviderTimeout)),
	}

	// 4. Create Topic (Ensure it exists)
	tc := broker.NewTopicCreator(logger, &broker.RealKafkaDialer{Dialer: kafka.DefaultDialer}, broker.RealSleeper{}, 4)
	tc.Create(context.Background(), cfg.Kafka.Brokers, cfg.Kafka.Topic)

	// 5. Setup Kafka Writer
	writer := broker.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	assets := make([]string, 0, len(cfg.Feeder.Assets))
	for _, a := range cfg.Feeder.Assets {
		sym, ok := market.NormalizeAsset(a)
		if !ok {
			logger.Warn("Skipping unsupported feeder asset", zap.String("asset", a))
			continue
		}
		assets = append(assets, sym)
	}

	f := feeder.NewFeeder(logger, writer, chain, assets, cfg.Feeder.Interval, feeder.RealClock{})

	// 6. Setup Shutdown Hook
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	// 7. Wait for Shutdown Signal
	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()
	<-done

	// 8. Flush Kafka Buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}

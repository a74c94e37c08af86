package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Market    MarketConfig    `mapstructure:"market"`
	Debate    DebateConfig    `mapstructure:"debate"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Feeder    FeederConfig    `mapstructure:"feeder"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "development", "production"
}

// IsProduction gates debug-only behaviour such as failure-injection headers.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	GroupID     string   `mapstructure:"group_id"`
	EventsTopic string   `mapstructure:"events_topic"` // session lifecycle journal, empty disables it
}

type MarketConfig struct {
	FreshnessWindow   time.Duration `mapstructure:"freshness_window"`
	CacheRetention    time.Duration `mapstructure:"cache_retention"`
	ProviderTimeout   time.Duration `mapstructure:"provider_timeout"`
	CoinGeckoURL      string        `mapstructure:"coingecko_url"`
	YahooURL          string        `mapstructure:"yahoo_url"`
	CoinGeckoMaxCalls int           `mapstructure:"coingecko_max_calls"`
	CoinGeckoWindow   time.Duration `mapstructure:"coingecko_window"`
}

type DebateConfig struct {
	MaxTurns int           `mapstructure:"max_turns"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

type GatewayConfig struct {
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AuthTokens        []string      `mapstructure:"auth_tokens"`
	RateLimit         int           `mapstructure:"rate_limit"`
	RateWindow        time.Duration `mapstructure:"rate_window"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
}

type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // "json" or "console"
	File       string `mapstructure:"file"`     // rotate into this file instead of stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type FeederConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Assets   []string      `mapstructure:"assets"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	setDefaults(v)

	// 3. Configure Viper to read Environment Variables ("app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys so Unmarshal sees flat env vars in nested structs
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id", "kafka.events_topic")
	bindEnv(v, "market.freshness_window", "market.cache_retention", "market.provider_timeout",
		"market.coingecko_url", "market.yahoo_url", "market.coingecko_max_calls", "market.coingecko_window")
	bindEnv(v, "debate.max_turns", "debate.state_ttl")
	bindEnv(v, "gateway.allowed_origins", "gateway.auth_tokens", "gateway.rate_limit", "gateway.rate_window",
		"gateway.heartbeat_interval", "gateway.read_timeout", "gateway.write_wait")
	bindEnv(v, "llm.api_key", "llm.base_url", "llm.model", "llm.temperature", "llm.timeout")
	bindEnv(v, "logger.level", "logger.encoding", "logger.file", "logger.max_size_mb",
		"logger.max_backups", "logger.max_age_days")
	bindEnv(v, "processor.num_workers")
	bindEnv(v, "feeder.interval", "feeder.assets")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 6. Basic Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "market-cache-warmer")
	v.SetDefault("kafka.events_topic", "")

	v.SetDefault("market.freshness_window", 60*time.Second)
	v.SetDefault("market.cache_retention", time.Hour)
	v.SetDefault("market.provider_timeout", 10*time.Second)
	v.SetDefault("market.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.yahoo_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("market.coingecko_max_calls", 30)
	v.SetDefault("market.coingecko_window", 60*time.Second)

	v.SetDefault("debate.max_turns", 6)
	v.SetDefault("debate.state_ttl", time.Hour)

	v.SetDefault("gateway.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("gateway.auth_tokens", []string{})
	v.SetDefault("gateway.rate_limit", 10)
	v.SetDefault("gateway.rate_window", 60*time.Second)
	v.SetDefault("gateway.heartbeat_interval", 30*time.Second)
	v.SetDefault("gateway.read_timeout", 60*time.Second)
	v.SetDefault("gateway.write_wait", 5*time.Second)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("processor.num_workers", 4)

	v.SetDefault("feeder.interval", 30*time.Second)
	v.SetDefault("feeder.assets", []string{"BTC", "ETH", "SOL"})
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Market.FreshnessWindow <= 0 {
		return fmt.Errorf("market.freshness_window must be positive, got %s", c.Market.FreshnessWindow)
	}
	if c.Market.CacheRetention < c.Market.FreshnessWindow {
		return fmt.Errorf("market.cache_retention (%s) must not be shorter than the freshness window (%s)",
			c.Market.CacheRetention, c.Market.FreshnessWindow)
	}
	if c.Debate.MaxTurns <= 0 {
		return fmt.Errorf("debate.max_turns must be positive, got %d", c.Debate.MaxTurns)
	}
	if c.Gateway.RateLimit <= 0 {
		return fmt.Errorf("gateway.rate_limit must be positive, got %d", c.Gateway.RateLimit)
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor.num_workers must be positive, got %d", c.Processor.NumWorkers)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

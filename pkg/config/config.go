package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenConfig is one tracked token registry entry.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Mint     string `yaml:"mint"`
	Decimals int    `yaml:"decimals"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Backend struct {
		Type string `yaml:"type"` // kafka | clickhouse | none
	} `yaml:"backend"`
	Market struct {
		Tokens       []TokenConfig      `yaml:"tokens"`
		Source       string             `yaml:"source"` // synthetic | clickhouse
		Timeframe    string             `yaml:"timeframe"`
		ScanInterval time.Duration      `yaml:"scan_interval"`
		ScanBars     int                `yaml:"scan_bars"`
		BasePrices   map[string]float64 `yaml:"base_prices"`
	} `yaml:"market"`
	Models struct {
		Dir      string `yaml:"dir"`
		TrainN   int    `yaml:"train_n"`
		AutoLoad bool   `yaml:"auto_load"`
	} `yaml:"models"`
	PriceFeed struct {
		Enabled  bool          `yaml:"enabled"`
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout"`
		Attempts int           `yaml:"attempts"`
	} `yaml:"price_feed"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Analytics struct {
		CacheTTL struct {
			Signal   time.Duration `yaml:"signal"`
			Overview time.Duration `yaml:"overview"`
			Analysis time.Duration `yaml:"analysis"`
			Insights time.Duration `yaml:"insights"`
		} `yaml:"cache_ttl"`
	} `yaml:"analytics"`
}

// defaultTokens is the registry used when the YAML lists none.
func defaultTokens() []TokenConfig {
	return []TokenConfig{
		{Symbol: "SOL", Name: "Solana", Mint: "So11111111111111111111111111111111111111112", Decimals: 9},
		{Symbol: "USDC", Name: "USD Coin", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
		{Symbol: "USDT", Name: "Tether", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
		{Symbol: "RAY", Name: "Raydium", Mint: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6},
		{Symbol: "SRM", Name: "Serum", Mint: "SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt", Decimals: 6},
		{Symbol: "BONK", Name: "Bonk", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("MARKET_SOURCE"); v != "" {
		c.Market.Source = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Market.Tokens = filterTokens(c.Market.Tokens, strings.Split(v, ","))
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("PRICE_FEED_URL"); v != "" {
		c.PriceFeed.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// filterTokens keeps registry entries whose symbol appears in keep.
func filterTokens(tokens []TokenConfig, keep []string) []TokenConfig {
	want := make(map[string]bool, len(keep))
	for _, s := range keep {
		want[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	out := make([]TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		if want[strings.ToUpper(t.Symbol)] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tokens
	}
	return out
}

func (c *Config) fillDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "none"
	}
	if len(c.Market.Tokens) == 0 {
		c.Market.Tokens = defaultTokens()
	}
	if c.Market.Source == "" {
		c.Market.Source = "synthetic"
	}
	if c.Market.Timeframe == "" {
		c.Market.Timeframe = "1h"
	}
	if c.Market.ScanInterval == 0 {
		c.Market.ScanInterval = time.Minute
	}
	if c.Market.ScanBars == 0 {
		c.Market.ScanBars = 300
	}
	if c.Models.Dir == "" {
		c.Models.Dir = "models"
	}
	if c.Models.TrainN == 0 {
		c.Models.TrainN = 1000
	}
	if c.PriceFeed.BaseURL == "" {
		c.PriceFeed.BaseURL = "https://price.jup.ag"
	}
	if c.PriceFeed.Timeout == 0 {
		c.PriceFeed.Timeout = 10 * time.Second
	}
	if c.PriceFeed.Attempts == 0 {
		c.PriceFeed.Attempts = 3
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.QueueSize == 0 {
		c.Queue.QueueSize = 64
	}
	if c.Queue.RetryLimit == 0 {
		c.Queue.RetryLimit = 3
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = 5 * time.Second
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "solsignal.signals"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "solsignal"
	}
	if c.Analytics.CacheTTL.Signal == 0 {
		c.Analytics.CacheTTL.Signal = 30 * time.Second
	}
	if c.Analytics.CacheTTL.Overview == 0 {
		c.Analytics.CacheTTL.Overview = 30 * time.Second
	}
	if c.Analytics.CacheTTL.Analysis == 0 {
		c.Analytics.CacheTTL.Analysis = 60 * time.Second
	}
	if c.Analytics.CacheTTL.Insights == 0 {
		c.Analytics.CacheTTL.Insights = 60 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse", "none":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Backend.Type)
	}
	switch c.Market.Source {
	case "synthetic", "clickhouse":
	default:
		return fmt.Errorf("market.source must be 'synthetic' or 'clickhouse', got '%s'", c.Market.Source)
	}
	switch c.Market.Timeframe {
	case "1m", "5m", "1h", "1d":
	default:
		return fmt.Errorf("market.timeframe must be one of 1m, 5m, 1h, 1d, got '%s'", c.Market.Timeframe)
	}
	if len(c.Market.Tokens) == 0 {
		return fmt.Errorf("market.tokens cannot be empty")
	}
	for _, t := range c.Market.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("market.tokens entries need a symbol")
		}
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for the kafka backend")
	}
	needCH := c.Backend.Type == "clickhouse" || c.Market.Source == "clickhouse"
	if needCH && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required for clickhouse source or backend")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr required when redis is enabled")
	}
	return nil
}

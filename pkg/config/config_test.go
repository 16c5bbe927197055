package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: development\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Backend.Type != "none" {
		t.Fatalf("backend = %q, want none", cfg.Backend.Type)
	}
	if cfg.Market.Source != "synthetic" || cfg.Market.Timeframe != "1h" {
		t.Fatalf("market defaults = %q/%q", cfg.Market.Source, cfg.Market.Timeframe)
	}
	if len(cfg.Market.Tokens) != 6 || cfg.Market.Tokens[0].Symbol != "SOL" {
		t.Fatalf("token registry default = %+v", cfg.Market.Tokens)
	}
	if cfg.Models.Dir != "models" || cfg.Models.TrainN != 1000 {
		t.Fatalf("model defaults = %q/%d", cfg.Models.Dir, cfg.Models.TrainN)
	}
	if cfg.Kafka.Topic != "solsignal.signals" || cfg.ClickHouse.Database != "solsignal" {
		t.Fatalf("infra defaults = %q/%q", cfg.Kafka.Topic, cfg.ClickHouse.Database)
	}
	if cfg.Analytics.CacheTTL.Signal != 30*time.Second || cfg.Analytics.CacheTTL.Analysis != time.Minute {
		t.Fatalf("cache ttl defaults = %+v", cfg.Analytics.CacheTTL)
	}
}

func TestLoadParsesExplicitTokens(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
environment: production
market:
  tokens:
    - symbol: SOL
      name: Solana
      mint: So11111111111111111111111111111111111111112
      decimals: 9
  timeframe: 5m
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Market.Tokens) != 1 || cfg.Market.Tokens[0].Decimals != 9 {
		t.Fatalf("tokens = %+v", cfg.Market.Tokens)
	}
	if cfg.Market.Timeframe != "5m" {
		t.Fatalf("timeframe = %q", cfg.Market.Timeframe)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing environment", "server:\n  port: 9000\n", "environment"},
		{"bad backend", "environment: dev\nbackend:\n  type: rabbitmq\n", "backend.type"},
		{"bad source", "environment: dev\nmarket:\n  source: csv\n", "market.source"},
		{"bad timeframe", "environment: dev\nmarket:\n  timeframe: 3h\n", "market.timeframe"},
		{"kafka without brokers", "environment: dev\nbackend:\n  type: kafka\n", "kafka.brokers"},
		{"clickhouse without host", "environment: dev\nmarket:\n  source: clickhouse\n", "clickhouse.host"},
		{"redis without addr", "environment: dev\nredis:\n  enabled: true\n", "redis.addr"},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want mention of %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "signals.test")
	t.Setenv("SYMBOLS", "sol, ray")
	t.Setenv("MODEL_DIR", "/tmp/bundles")

	cfg, err := LoadWithEnv(writeConfig(t, "environment: development\n"))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.Backend.Type != "kafka" {
		t.Fatalf("backend = %q", cfg.Backend.Type)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "signals.test" {
		t.Fatalf("topic = %q", cfg.Kafka.Topic)
	}
	if len(cfg.Market.Tokens) != 2 {
		t.Fatalf("symbol filter kept %d tokens: %+v", len(cfg.Market.Tokens), cfg.Market.Tokens)
	}
	for _, tok := range cfg.Market.Tokens {
		if tok.Symbol != "SOL" && tok.Symbol != "RAY" {
			t.Fatalf("unexpected token %q after filter", tok.Symbol)
		}
	}
	if cfg.Models.Dir != "/tmp/bundles" {
		t.Fatalf("model dir = %q", cfg.Models.Dir)
	}
}

func TestSymbolFilterFallsBackToRegistry(t *testing.T) {
	t.Setenv("SYMBOLS", "DOGE")

	cfg, err := LoadWithEnv(writeConfig(t, "environment: development\n"))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if len(cfg.Market.Tokens) != 6 {
		t.Fatalf("unknown symbol should keep the full registry, got %d", len(cfg.Market.Tokens))
	}
}

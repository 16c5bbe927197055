package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"SolSignal/internal/di"
	"SolSignal/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("solsignal: %v", err)
	}
}

func run(configPath string) error {
	// A local .env can override config values during development.
	_ = godotenv.Load(".env")

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// The structured logger is not up yet; stdlib log covers bootstrap.
	log.Printf("env=%s backend=%s source=%s tokens=%d timeframe=%s",
		cfg.Environment, cfg.Backend.Type, cfg.Market.Source,
		len(cfg.Market.Tokens), cfg.Market.Timeframe)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	return app.Run()
}

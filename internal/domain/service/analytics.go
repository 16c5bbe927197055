package service

import (
	"context"

	"SolSignal/internal/domain/models"
)

// PriceFeed quotes current spot prices for registry tokens.
type PriceFeed interface {
	SpotPrice(ctx context.Context, token models.Token) (models.TokenPrice, error)
}

// RiskAnalyzer computes return statistics over a candle window. The
// timeframe string drives annualization.
type RiskAnalyzer interface {
	Risk(ctx context.Context, symbol string, candles []models.Candle, tf string) (*models.RiskMetrics, error)
}

// PatternAnalyzer reads support/resistance position and moving-average trend
// from a candle window.
type PatternAnalyzer interface {
	Patterns(ctx context.Context, symbol string, candles []models.Candle) (*models.PricePatterns, error)
}

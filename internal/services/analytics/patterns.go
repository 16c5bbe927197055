package analytics

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"SolSignal/internal/domain/models"
	domsvc "SolSignal/internal/domain/service"
)

const (
	srWindow    = 20
	smaShortWin = 10
	smaLongWin  = 30
)

// PatternService reads support/resistance position and moving-average trend
// from recent closes.
type PatternService struct{}

func NewPatternService() *PatternService { return &PatternService{} }

func (s *PatternService) Patterns(ctx context.Context, symbol string, candles []models.Candle) (*models.PricePatterns, error) {
	if len(candles) < smaLongWin {
		return nil, fmt.Errorf("patterns %s: %d bars, need %d: %w", symbol, len(candles), smaLongWin, models.ErrInsufficientData)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	n := len(closes)
	current := closes[n-1]

	p := &models.PricePatterns{
		Symbol:     symbol,
		Timestamp:  time.Now().UTC(),
		Support:    floats.Min(closes[n-srWindow:]),
		Resistance: floats.Max(closes[n-srWindow:]),
		Position:   0.5,
	}
	if p.Resistance != p.Support {
		p.Position = (current - p.Support) / (p.Resistance - p.Support)
	}

	smaShort := stat.Mean(closes[n-smaShortWin:], nil)
	smaLong := stat.Mean(closes[n-smaLongWin:], nil)
	if smaShort > smaLong {
		p.Trend = "upward"
		p.Strength = (smaShort/smaLong - 1) * 100
	} else {
		p.Trend = "downward"
		p.Strength = (1 - smaShort/smaLong) * 100
	}
	return p, nil
}

var _ domsvc.PatternAnalyzer = (*PatternService)(nil)

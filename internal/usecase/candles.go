package usecase

import (
	"context"
	"fmt"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
)

const (
	defaultCandleLimit = 600
	maxCandleLimit     = 10000
)

// CandlesUseCase answers raw candle queries for charting and debugging.
type CandlesUseCase struct {
	source domrepo.CandleSource
}

func NewCandlesUseCase(source domrepo.CandleSource) *CandlesUseCase {
	return &CandlesUseCase{source: source}
}

// GetCandlesParams describes one candle query. Zero From and To resolve to
// the most recent defaultCandleLimit bars of the chosen timeframe.
type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

// normalize fills defaults in place and rejects impossible queries.
func (p *GetCandlesParams) normalize() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol required")
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	} else if !domrepo.IsValidTimeframe(p.Timeframe) {
		return fmt.Errorf("unknown timeframe %q", p.Timeframe)
	}
	if p.To.IsZero() {
		p.To = time.Now().UTC()
	}
	if p.From.IsZero() {
		p.From = p.To.Add(-defaultCandleLimit * p.Timeframe.Duration())
	}
	if p.From.After(p.To) {
		return fmt.Errorf("from is after to")
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultCandleLimit
	case p.Limit > maxCandleLimit:
		p.Limit = maxCandleLimit
	}
	return nil
}

// GetCandlesResult echoes the resolved query window alongside the bars.
type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	candles, err := uc.source.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if excess := len(candles) - p.Limit; excess > 0 {
		// drop the oldest bars
		candles = candles[excess:]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

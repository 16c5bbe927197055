package repository

import (
	"context"
	"time"

	"SolSignal/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// timeframes maps every supported resolution to its bar interval.
var timeframes = map[Timeframe]time.Duration{
	TF1m: time.Minute,
	TF5m: 5 * time.Minute,
	TF1h: time.Hour,
	TF1d: 24 * time.Hour,
}

// Duration returns the bar interval, defaulting to an hour for unknown values.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := timeframes[tf]; ok {
		return d
	}
	return time.Hour
}

// IsValidTimeframe reports whether tf is a supported resolution.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframes[tf]
	return ok
}

// DefaultTimeframe is the resolution used when a query names none.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe maps a raw string onto a supported timeframe, falling
// back to the default for empty or unknown input.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// CandleSource provides time-ordered OHLCV history for a symbol. It may
// return fewer rows than requested near data start.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

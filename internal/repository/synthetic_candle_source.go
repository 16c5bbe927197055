package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
)

const (
	cycleAmplitude = 0.08 // weekly swing around the base price
	noiseAmplitude = 0.01 // per-bar noise
	wickAmplitude  = 0.005
	baseVolume     = 25000.0
	secsPerCycle   = 7 * 24 * 3600

	maxSyntheticBars = 50000
)

// SyntheticCandleSource fabricates OHLCV history so the demo runs without a
// live ingest pipeline. A bar is a pure function of (symbol, bucket), so
// repeated and overlapping reads agree on shared buckets, and the open of
// each bar equals the close of the previous one.
type SyntheticCandleSource struct {
	bases map[string]float64
}

// NewSyntheticCandleSource takes per-symbol base prices; symbols without an
// entry get a hash-derived base.
func NewSyntheticCandleSource(bases map[string]float64) *SyntheticCandleSource {
	return &SyntheticCandleSource{bases: bases}
}

func (s *SyntheticCandleSource) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	step := tf.Duration()
	first := from.UTC().Truncate(step)
	if first.Before(from) {
		first = first.Add(step)
	}
	if to.Before(first) {
		return nil, nil
	}
	if n := int(to.Sub(first)/step) + 1; n > maxSyntheticBars {
		return nil, fmt.Errorf("synthetic candles: range spans %d bars, max %d", n, maxSyntheticBars)
	}
	out := make([]models.Candle, 0, int(to.Sub(first)/step)+1)
	for b := first; !b.After(to); b = b.Add(step) {
		out = append(out, s.barAt(symbol, b, step))
	}
	return out, nil
}

func (s *SyntheticCandleSource) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > maxSyntheticBars {
		return nil, fmt.Errorf("synthetic candles: %d bars requested, max %d", n, maxSyntheticBars)
	}
	step := tf.Duration()
	end := time.Now().UTC().Truncate(step)
	out := make([]models.Candle, 0, n)
	for b := end.Add(-time.Duration(n-1) * step); !b.After(end); b = b.Add(step) {
		out = append(out, s.barAt(symbol, b, step))
	}
	return out, nil
}

func (s *SyntheticCandleSource) barAt(symbol string, bucket time.Time, step time.Duration) models.Candle {
	u := bucket.Unix()
	open := s.refPrice(symbol, u-int64(step/time.Second))
	close := s.refPrice(symbol, u)

	rng := rand.New(rand.NewSource(symbolSeed(symbol) ^ u*2654435761))
	high := math.Max(open, close) * (1 + wickAmplitude*rng.Float64())
	low := math.Min(open, close) * (1 - wickAmplitude*rng.Float64())
	return models.Candle{
		Bucket: bucket.UTC(),
		Symbol: symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: baseVolume * (0.5 + rng.Float64()),
	}
}

// refPrice is the close at bucket u: a weekly sinusoid around the base with
// seeded per-bar noise. Amplitudes keep the factor well above zero.
func (s *SyntheticCandleSource) refPrice(symbol string, u int64) float64 {
	base := s.baseFor(symbol)
	phase := 2 * math.Pi * float64(((u%secsPerCycle)+secsPerCycle)%secsPerCycle) / float64(secsPerCycle)
	rng := rand.New(rand.NewSource(symbolSeed(symbol) ^ u))
	noise := noiseAmplitude * (2*rng.Float64() - 1)
	return base * (1 + cycleAmplitude*math.Sin(phase) + noise)
}

func (s *SyntheticCandleSource) baseFor(symbol string) float64 {
	if b, ok := s.bases[symbol]; ok && b > 0 {
		return b
	}
	return 1 + float64(symbolSeed(symbol)%19900)/100
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

var _ domrepo.CandleSource = (*SyntheticCandleSource)(nil)

package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"SolSignal/internal/domain/models"
)

// Indicator windows. MinBars is driven by the largest rolling window; series
// shorter than that are rejected before any computation.
const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSmooth   = 9
	bbPeriod     = 20
	bbDev        = 2.0
	emaFast      = 9
	emaSlow      = 21
	smaLong      = 50
	volEMAPeriod = 20
	volWindow    = 20
	srWindow     = 20

	MinBars = smaLong

	// WarmupRows counts the leading rows where at least one feature column
	// still carries zero fill. SMA-50 defines the longest warm-up.
	WarmupRows = smaLong - 1
)

// First row index at which each derived column is defined. Everything before
// is warm-up and takes the fill policy.
const (
	rsiFirst     = rsiPeriod
	emaFastFirst = emaFast - 1
	emaSlowFirst = emaSlow - 1
	smaLongFirst = smaLong - 1
	rollFirst    = bbPeriod - 1
	macdFirst    = macdSlow - 1
	signalFirst  = macdSlow + macdSmooth - 2
	changeFirst  = 1
)

// ValidateSeries rejects series that violate the OHLCV invariants: strictly
// increasing timestamps, positive close, non-negative open/high/low/volume,
// no NaN or Inf anywhere.
func ValidateSeries(candles []models.Candle) error {
	for i, c := range candles {
		if i > 0 && !c.Bucket.After(candles[i-1].Bucket) {
			return fmt.Errorf("bar %d: bucket %s not after %s: %w",
				i, c.Bucket.Format("2006-01-02T15:04:05Z"), candles[i-1].Bucket.Format("2006-01-02T15:04:05Z"), models.ErrMalformedSeries)
		}
		if !(c.Close > 0) || math.IsInf(c.Close, 0) {
			return fmt.Errorf("bar %d: close %v: %w", i, c.Close, models.ErrMalformedSeries)
		}
		for _, v := range [4]float64{c.Open, c.High, c.Low, c.Volume} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("bar %d: negative or undefined field: %w", i, models.ErrMalformedSeries)
			}
		}
	}
	return nil
}

// Compute augments a candle series with every indicator column. Only data up
// to and including each row is used; warm-up prefixes forward-fill from the
// first defined value and zero-fill whatever is still undefined at row 0.
func Compute(symbol string, candles []models.Candle) (*models.MarketFrame, error) {
	if err := ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("compute indicators %s: %w", symbol, err)
	}
	n := len(candles)
	if n < MinBars {
		return nil, fmt.Errorf("compute indicators %s: %d bars, need %d: %w", symbol, n, MinBars, models.ErrInsufficientData)
	}

	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		// Absent open/high/low degrade to close rather than failing.
		opens[i] = orClose(c.Open, c.Close)
		highs[i] = orClose(c.High, c.Close)
		lows[i] = orClose(c.Low, c.Close)
		volumes[i] = c.Volume
	}

	f := &models.MarketFrame{Symbol: symbol, Candles: candles}

	f.RSI = talib.Rsi(closes, rsiPeriod)
	f.EMA9 = talib.Ema(closes, emaFast)
	f.EMA21 = talib.Ema(closes, emaSlow)
	f.SMA50 = talib.Sma(closes, smaLong)
	f.BBHigh, f.BBMid, f.BBLow = talib.BBands(closes, bbPeriod, bbDev, bbDev, talib.SMA)
	f.Volatility = talib.StdDev(closes, volWindow, 1.0)
	f.Support = talib.Min(lows, srWindow)
	f.Resistance = talib.Max(highs, srWindow)
	f.VolumeEMA = talib.Ema(volumes, volEMAPeriod)

	f.MACD, f.MACDSignal, f.MACDDiff = macdColumns(closes)

	f.VolumeRatio = make([]float64, n)
	f.PriceChange = make([]float64, n)
	f.HighLowRatio = make([]float64, n)
	f.CloseOpenRatio = make([]float64, n)
	for i := 0; i < n; i++ {
		if i >= rollFirst && f.VolumeEMA[i] > 0 {
			f.VolumeRatio[i] = volumes[i] / f.VolumeEMA[i]
		} else {
			f.VolumeRatio[i] = math.NaN()
		}
		if i > 0 {
			f.PriceChange[i] = (closes[i] - closes[i-1]) / closes[i-1]
		}
		f.HighLowRatio[i] = highs[i] / lows[i]
		f.CloseOpenRatio[i] = closes[i] / opens[i]
	}

	fillSeries(f.RSI, rsiFirst)
	fillSeries(f.EMA9, emaFastFirst)
	fillSeries(f.EMA21, emaSlowFirst)
	fillSeries(f.SMA50, smaLongFirst)
	fillSeries(f.BBHigh, rollFirst)
	fillSeries(f.BBMid, rollFirst)
	fillSeries(f.BBLow, rollFirst)
	fillSeries(f.Volatility, rollFirst)
	fillSeries(f.Support, rollFirst)
	fillSeries(f.Resistance, rollFirst)
	fillSeries(f.VolumeEMA, rollFirst)
	fillSeries(f.MACD, macdFirst)
	fillSeries(f.MACDSignal, signalFirst)
	fillSeries(f.MACDDiff, signalFirst)
	fillSeries(f.VolumeRatio, rollFirst)
	fillSeries(f.PriceChange, changeFirst)
	fillSeries(f.HighLowRatio, 0)
	fillSeries(f.CloseOpenRatio, 0)

	return f, nil
}

// macdColumns builds the MACD line, signal line and histogram from seeded
// EMAs. The line is defined from the slow EMA warm-up onward; the signal EMA
// runs over the defined part of the line only.
func macdColumns(closes []float64) (macd, signal, hist []float64) {
	n := len(closes)
	fast := talib.Ema(closes, macdFast)
	slow := talib.Ema(closes, macdSlow)

	macd = make([]float64, n)
	for i := macdFirst; i < n; i++ {
		macd[i] = fast[i] - slow[i]
	}

	signal = make([]float64, n)
	copy(signal[macdFirst:], talib.Ema(macd[macdFirst:], macdSmooth))

	hist = make([]float64, n)
	for i := signalFirst; i < n; i++ {
		hist[i] = macd[i] - signal[i]
	}
	return macd, signal, hist
}

// fillSeries applies the fill policy in place: rows before firstValid and
// interior NaN/Inf holes take the previous defined value, or zero when
// nothing is defined yet.
func fillSeries(vals []float64, firstValid int) {
	last := 0.0
	defined := false
	for i := range vals {
		if i < firstValid || math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
			if defined {
				vals[i] = last
			} else {
				vals[i] = 0
			}
			continue
		}
		last = vals[i]
		defined = true
	}
}

func orClose(v, close float64) float64 {
	if v == 0 {
		return close
	}
	return v
}

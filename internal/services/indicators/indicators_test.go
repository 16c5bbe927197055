package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"SolSignal/internal/domain/models"
)

func testCandles(n int) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		move := 2.0*math.Sin(float64(i)/5.0) + 0.05*float64(i%7)
		open := price
		close := price + move
		if close <= 1 {
			close = 1
		}
		high := math.Max(open, close) + 0.5
		low := math.Min(open, close) - 0.5
		if low <= 0 {
			low = 0.1
		}
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour),
			Symbol: "SOL",
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 1000 + 50*math.Cos(float64(i)/3.0),
		}
		price = close
	}
	return out
}

func frameColumns(f *models.MarketFrame) map[string][]float64 {
	return map[string][]float64{
		"rsi":              f.RSI,
		"macd":             f.MACD,
		"macd_signal":      f.MACDSignal,
		"macd_diff":        f.MACDDiff,
		"bb_high":          f.BBHigh,
		"bb_low":           f.BBLow,
		"bb_mid":           f.BBMid,
		"ema_9":            f.EMA9,
		"ema_21":           f.EMA21,
		"sma_50":           f.SMA50,
		"volume_ema":       f.VolumeEMA,
		"volume_ratio":     f.VolumeRatio,
		"price_change":     f.PriceChange,
		"high_low_ratio":   f.HighLowRatio,
		"close_open_ratio": f.CloseOpenRatio,
		"volatility":       f.Volatility,
		"support":          f.Support,
		"resistance":       f.Resistance,
	}
}

func TestComputeFillIsTotal(t *testing.T) {
	f, err := Compute("SOL", testCandles(60))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for name, col := range frameColumns(f) {
		if len(col) != f.Len() {
			t.Fatalf("%s: length %d, want %d", name, len(col), f.Len())
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s[%d] undefined after fill: %v", name, i, v)
			}
		}
	}
}

func TestComputeRejectsShortSeries(t *testing.T) {
	_, err := Compute("SOL", testCandles(MinBars-1))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestComputeRejectsMalformedSeries(t *testing.T) {
	dup := testCandles(60)
	dup[10].Bucket = dup[9].Bucket
	if _, err := Compute("SOL", dup); !errors.Is(err, models.ErrMalformedSeries) {
		t.Fatalf("duplicate bucket: expected malformed series, got %v", err)
	}

	neg := testCandles(60)
	neg[5].Volume = -1
	if _, err := Compute("SOL", neg); !errors.Is(err, models.ErrMalformedSeries) {
		t.Fatalf("negative volume: expected malformed series, got %v", err)
	}

	zero := testCandles(60)
	zero[7].Close = 0
	if _, err := Compute("SOL", zero); !errors.Is(err, models.ErrMalformedSeries) {
		t.Fatalf("zero close: expected malformed series, got %v", err)
	}
}

func TestRSIStaysInBounds(t *testing.T) {
	f, err := Compute("SOL", testCandles(200))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i, v := range f.RSI {
		if v < 0 || v > 100 {
			t.Fatalf("rsi[%d] out of bounds: %v", i, v)
		}
	}
}

func TestBollingerOrdering(t *testing.T) {
	f, err := Compute("SOL", testCandles(120))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := range f.BBMid {
		if f.BBHigh[i] < f.BBMid[i] || f.BBMid[i] < f.BBLow[i] {
			t.Fatalf("band ordering broken at %d: %v %v %v", i, f.BBHigh[i], f.BBMid[i], f.BBLow[i])
		}
	}
}

func TestWarmupRowsAreZeroFilled(t *testing.T) {
	f, err := Compute("SOL", testCandles(60))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 0; i < smaLong-1; i++ {
		if f.SMA50[i] != 0 {
			t.Fatalf("sma_50[%d] = %v, want zero fill", i, f.SMA50[i])
		}
	}
	if f.SMA50[smaLong-1] == 0 {
		t.Fatalf("sma_50 first defined row is zero")
	}
	for i := 0; i < rsiPeriod; i++ {
		if f.RSI[i] != 0 {
			t.Fatalf("rsi[%d] = %v, want zero fill", i, f.RSI[i])
		}
	}
	if f.PriceChange[0] != 0 {
		t.Fatalf("price_change[0] = %v, want 0", f.PriceChange[0])
	}
}

func TestDegradedSeriesDefaultsToClose(t *testing.T) {
	candles := testCandles(60)
	for i := range candles {
		candles[i].Open = 0
		candles[i].High = 0
		candles[i].Low = 0
	}
	f, err := Compute("SOL", candles)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := range candles {
		if f.HighLowRatio[i] != 1 {
			t.Fatalf("high_low_ratio[%d] = %v, want 1", i, f.HighLowRatio[i])
		}
		if f.CloseOpenRatio[i] != 1 {
			t.Fatalf("close_open_ratio[%d] = %v, want 1", i, f.CloseOpenRatio[i])
		}
	}
}

func TestPriceChangeMatchesReturns(t *testing.T) {
	candles := testCandles(60)
	f, err := Compute("SOL", candles)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 1; i < len(candles); i++ {
		want := (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
		if math.Abs(f.PriceChange[i]-want) > 1e-12 {
			t.Fatalf("price_change[%d] = %v, want %v", i, f.PriceChange[i], want)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute("SOL", testCandles(80))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, err := Compute("SOL", testCandles(80))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	ca, cb := frameColumns(a), frameColumns(b)
	for name := range ca {
		for i := range ca[name] {
			if ca[name][i] != cb[name][i] {
				t.Fatalf("%s[%d] differs across identical runs", name, i)
			}
		}
	}
}

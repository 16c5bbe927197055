package features

import (
	"testing"

	"SolSignal/internal/domain/models"
)

func orderedFrame(rows int) *models.MarketFrame {
	col := func(base float64) []float64 {
		out := make([]float64, rows)
		for i := range out {
			out[i] = base + float64(i)*100
		}
		return out
	}
	return &models.MarketFrame{
		Symbol:         "SOL",
		Candles:        make([]models.Candle, rows),
		RSI:            col(0),
		MACD:           col(1),
		MACDSignal:     col(2),
		MACDDiff:       col(3),
		BBHigh:         col(4),
		BBLow:          col(5),
		BBMid:          col(6),
		EMA9:           col(7),
		EMA21:          col(8),
		SMA50:          col(9),
		VolumeRatio:    col(10),
		PriceChange:    col(11),
		HighLowRatio:   col(12),
		CloseOpenRatio: col(13),
		Volatility:     col(14),
		VolumeEMA:      col(90),
		Support:        col(91),
		Resistance:     col(92),
	}
}

func TestColumnOrder(t *testing.T) {
	want := []string{
		"rsi", "macd", "macd_signal", "macd_diff",
		"bb_high", "bb_low", "bb_mid",
		"ema_9", "ema_21", "sma_50",
		"volume_ratio", "price_change", "high_low_ratio", "close_open_ratio",
		"volatility",
	}
	if len(Columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(Columns))
	}
	for i := range want {
		if Columns[i] != want[i] {
			t.Fatalf("column %d = %q, want %q", i, Columns[i], want[i])
		}
	}
}

func TestRowFollowsColumnOrder(t *testing.T) {
	f := orderedFrame(3)
	for r := 0; r < 3; r++ {
		row := Row(f, r)
		if len(row) != len(Columns) {
			t.Fatalf("row length %d, want %d", len(row), len(Columns))
		}
		for k, v := range row {
			want := float64(k) + float64(r)*100
			if v != want {
				t.Fatalf("row %d col %d (%s) = %v, want %v", r, k, Columns[k], v, want)
			}
		}
	}
}

func TestMatrixShapeAndStability(t *testing.T) {
	f := orderedFrame(5)
	a := Matrix(f)
	b := Matrix(f)
	if len(a) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(a))
	}
	for i := range a {
		for k := range a[i] {
			if a[i][k] != b[i][k] {
				t.Fatalf("matrix not stable at %d,%d", i, k)
			}
		}
	}
	last := Latest(f)
	for k := range last {
		if last[k] != a[4][k] {
			t.Fatalf("latest row differs from last matrix row at %d", k)
		}
	}
}

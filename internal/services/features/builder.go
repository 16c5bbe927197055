package features

import (
	"SolSignal/internal/domain/models"
)

// Columns is the canonical feature order shared by training and inference.
// Scaling parameters and model weights are positional, so changing this list
// invalidates every persisted model set.
var Columns = []string{
	"rsi",
	"macd",
	"macd_signal",
	"macd_diff",
	"bb_high",
	"bb_low",
	"bb_mid",
	"ema_9",
	"ema_21",
	"sma_50",
	"volume_ratio",
	"price_change",
	"high_low_ratio",
	"close_open_ratio",
	"volatility",
}

// Row assembles frame row i into the canonical column order.
func Row(f *models.MarketFrame, i int) []float64 {
	return []float64{
		f.RSI[i],
		f.MACD[i],
		f.MACDSignal[i],
		f.MACDDiff[i],
		f.BBHigh[i],
		f.BBLow[i],
		f.BBMid[i],
		f.EMA9[i],
		f.EMA21[i],
		f.SMA50[i],
		f.VolumeRatio[i],
		f.PriceChange[i],
		f.HighLowRatio[i],
		f.CloseOpenRatio[i],
		f.Volatility[i],
	}
}

// Matrix assembles the whole frame, one row per bar.
func Matrix(f *models.MarketFrame) [][]float64 {
	rows := make([][]float64, f.Len())
	for i := range rows {
		rows[i] = Row(f, i)
	}
	return rows
}

// Latest returns the last row of the frame, the inference input.
func Latest(f *models.MarketFrame) []float64 {
	return Row(f, f.Len()-1)
}

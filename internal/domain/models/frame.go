package models

// MarketFrame is a candle series augmented with indicator columns. Every
// column is index-aligned with Candles. Warm-up prefixes are filled by the
// indicator engine, so a frame never carries NaN or Inf values.
type MarketFrame struct {
	Symbol  string
	Candles []Candle

	RSI            []float64
	MACD           []float64
	MACDSignal     []float64
	MACDDiff       []float64
	BBHigh         []float64
	BBLow          []float64
	BBMid          []float64
	EMA9           []float64
	EMA21          []float64
	SMA50          []float64
	VolumeEMA      []float64
	VolumeRatio    []float64
	PriceChange    []float64
	HighLowRatio   []float64
	CloseOpenRatio []float64
	Volatility     []float64
	Support        []float64
	Resistance     []float64
}

// Len returns the number of bars in the frame.
func (f *MarketFrame) Len() int { return len(f.Candles) }

// IndicatorSnapshot is one row of a MarketFrame.
type IndicatorSnapshot struct {
	RSI            float64
	MACD           float64
	MACDSignal     float64
	MACDDiff       float64
	BBHigh         float64
	BBLow          float64
	BBMid          float64
	EMA9           float64
	EMA21          float64
	SMA50          float64
	VolumeEMA      float64
	VolumeRatio    float64
	PriceChange    float64
	HighLowRatio   float64
	CloseOpenRatio float64
	Volatility     float64
	Support        float64
	Resistance     float64
}

// Snapshot returns row i of the frame. Callers must keep i within range.
func (f *MarketFrame) Snapshot(i int) IndicatorSnapshot {
	return IndicatorSnapshot{
		RSI:            f.RSI[i],
		MACD:           f.MACD[i],
		MACDSignal:     f.MACDSignal[i],
		MACDDiff:       f.MACDDiff[i],
		BBHigh:         f.BBHigh[i],
		BBLow:          f.BBLow[i],
		BBMid:          f.BBMid[i],
		EMA9:           f.EMA9[i],
		EMA21:          f.EMA21[i],
		SMA50:          f.SMA50[i],
		VolumeEMA:      f.VolumeEMA[i],
		VolumeRatio:    f.VolumeRatio[i],
		PriceChange:    f.PriceChange[i],
		HighLowRatio:   f.HighLowRatio[i],
		CloseOpenRatio: f.CloseOpenRatio[i],
		Volatility:     f.Volatility[i],
		Support:        f.Support[i],
		Resistance:     f.Resistance[i],
	}
}

package fusion

import (
	"SolSignal/internal/domain/models"
)

// RSI bands and the scoring weights of the decision rule.
const (
	OversoldRSI   = 30.0
	OverboughtRSI = 70.0

	trendPoints = 2
	rsiPoints   = 1
	macdPoints  = 1
)

// ClassifyRSI discretizes an RSI reading. Bands are strict: 30 and 70
// themselves read neutral.
func ClassifyRSI(v float64) models.IndicatorReading {
	r := models.IndicatorReading{Value: v, State: models.StateNeutral}
	switch {
	case v < OversoldRSI:
		r.State = models.StateOversold
	case v > OverboughtRSI:
		r.State = models.StateOverbought
	}
	return r
}

// ClassifyMACD discretizes a MACD histogram reading. Zero reads bearish.
func ClassifyMACD(hist float64) models.IndicatorReading {
	r := models.IndicatorReading{Value: hist, State: models.TrendBearish}
	if hist > 0 {
		r.State = models.TrendBullish
	}
	return r
}

// Resolve applies the decision rule to raw point totals. The +1 margin keeps
// near-ties at HOLD; confidence is the winning share of all points, exactly
// 0.5 on HOLD.
func Resolve(bullish, bearish int) (models.Action, float64) {
	total := bullish + bearish
	if total == 0 {
		return models.ActionHold, 0.5
	}
	switch {
	case bullish > bearish+1:
		return models.ActionBuy, float64(bullish) / float64(total)
	case bearish > bullish+1:
		return models.ActionSell, float64(bearish) / float64(total)
	default:
		return models.ActionHold, 0.5
	}
}

// Decide reduces the trend call and the latest indicator readings to one
// recommendation. State-free: the same inputs always score the same.
func Decide(trend models.TrendPrediction, rsi, macd models.IndicatorReading) (models.Action, float64, int, int) {
	b, s := 0, 0
	switch trend.Label {
	case models.TrendBullish:
		b += trendPoints
	case models.TrendBearish:
		s += trendPoints
	}
	switch rsi.State {
	case models.StateOversold:
		b += rsiPoints
	case models.StateOverbought:
		s += rsiPoints
	}
	switch macd.State {
	case models.TrendBullish:
		b += macdPoints
	case models.TrendBearish:
		s += macdPoints
	}

	action, confidence := Resolve(b, s)
	return action, confidence, b, s
}

package models

import "time"

// Action is the final recommendation side of a trading signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Trend labels shared by the classifier and the fusion scorer.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// Indicator states for discretized readings.
const (
	StateOversold   = "oversold"
	StateOverbought = "overbought"
	StateNeutral    = "neutral"
)

// IndicatorReading is the discretized view of one indicator at the latest bar.
type IndicatorReading struct {
	Value float64
	State string // "oversold", "overbought", "neutral" | "bullish", "bearish"
}

// TrendPrediction is the trend classifier output. An untrained classifier
// reports TrendNeutral at confidence 0.5 with nil Proba.
type TrendPrediction struct {
	Label      string    // "bullish", "bearish", "neutral"
	Confidence float64   // probability of the predicted class
	Proba      []float64 // [p(bearish), p(bullish)] when trained
}

// TradingSignal is the output record of one signal request.
// Created fresh per request; never mutated after creation.
type TradingSignal struct {
	Symbol        string
	Timestamp     time.Time
	Price         float64
	Action        Action
	Confidence    float64
	RSI           IndicatorReading
	MACD          IndicatorReading
	Trend         TrendPrediction
	Predictions   Prediction
	BullishPoints int
	BearishPoints int
}

// ModelSetInfo summarizes a trained model set for status reporting.
type ModelSetInfo struct {
	Symbol    string
	TrainedAt time.Time
	Bars      int
	Members   []string // trained member names
}

package models

import "time"

// NoPredictionReason is reported when no ensemble member is trained.
const NoPredictionReason = "no prediction available"

// Prediction is the consolidated view of all ensemble members for one symbol.
// Absent (untrained) members are nil and excluded from Ensemble.
type Prediction struct {
	Symbol       string
	Timestamp    time.Time
	CurrentPrice float64
	Regressor    *float64 // next-close estimate from the price regressor
	Forecaster   *float64 // next-step estimate from the time-series forecaster
	Ensemble     *float64 // mean of present price members
	Trend        TrendPrediction
	Reason       string // NoPredictionReason when every member is absent
}

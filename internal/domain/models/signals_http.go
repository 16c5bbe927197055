package models

// Requests for the signal API endpoints. Defined in domain for consistency and reuse.

type SignalRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"300" validate:"gte=50,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 1h 1d"`
}

type SignalHistoryRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type PredictRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	N      int    `json:"n" default:"300" validate:"gte=50,lte=5000"`
	TF     string `json:"tf" default:"1h" validate:"oneof=1m 5m 1h 1d"`
}

type TrainRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	N      int    `json:"n" default:"1000" validate:"gte=100,lte=50000"`
	TF     string `json:"tf" default:"1h" validate:"oneof=1m 5m 1h 1d"`
}

type ModelStatusRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type TokenPriceRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type TokenAnalysisRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"300" validate:"gte=50,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 1h 1d"`
}

type TrendingRequest struct {
	Limit int `query:"limit" json:"limit" default:"3" validate:"gte=1,lte=20"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 1h 1d"`
	Limit  int    `query:"limit" json:"limit" default:"600" validate:"gte=1,lte=10000"`
}

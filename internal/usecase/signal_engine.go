package usecase

import (
	"context"
	"fmt"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	"SolSignal/internal/services/ensemble"
	"SolSignal/internal/services/fusion"
	"SolSignal/internal/services/indicators"
)

// SignalEngine runs the full pipeline for one symbol: candles, indicator
// frame, ensemble prediction, fused recommendation. It never mutates model
// state; retraining swaps models through the ModelManager.
type SignalEngine struct {
	source  domrepo.CandleSource
	manager *ModelManager
	metrics domrepo.Metrics
	timeout time.Duration
}

func NewSignalEngine(source domrepo.CandleSource, manager *ModelManager, metrics domrepo.Metrics) *SignalEngine {
	return &SignalEngine{source: source, manager: manager, metrics: metrics, timeout: 10 * time.Second}
}

type GenerateSignalParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

func (uc *SignalEngine) GenerateSignal(ctx context.Context, p GenerateSignalParams) (*models.TradingSignal, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = 300
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	start := time.Now()
	candles, err := uc.source.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		uc.metrics.RecordError("candles")
		return nil, fmt.Errorf("get candles: %w", err)
	}
	frame, err := indicators.Compute(p.Symbol, candles)
	if err != nil {
		return nil, err
	}

	pred := ensemble.Predict(uc.manager.Get(p.Symbol), frame)

	last := frame.Len() - 1
	rsi := fusion.ClassifyRSI(frame.RSI[last])
	macd := fusion.ClassifyMACD(frame.MACDDiff[last])
	action, confidence, bullish, bearish := fusion.Decide(pred.Trend, rsi, macd)

	sig := &models.TradingSignal{
		Symbol:        p.Symbol,
		Timestamp:     frame.Candles[last].Bucket,
		Price:         frame.Candles[last].Close,
		Action:        action,
		Confidence:    confidence,
		RSI:           rsi,
		MACD:          macd,
		Trend:         pred.Trend,
		Predictions:   pred,
		BullishPoints: bullish,
		BearishPoints: bearish,
	}
	uc.metrics.RecordLastPrice(p.Symbol, sig.Price)
	uc.metrics.RecordLatency("generate_signal", time.Since(start).Seconds())
	return sig, nil
}

// Predict runs the ensemble without the fusion step, for callers that only
// want the raw member outputs.
func (uc *SignalEngine) Predict(ctx context.Context, p GenerateSignalParams) (models.Prediction, error) {
	sig, err := uc.GenerateSignal(ctx, p)
	if err != nil {
		return models.Prediction{}, err
	}
	return sig.Predictions, nil
}

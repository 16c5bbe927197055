package usecase

import (
	"context"
	"encoding/json"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
	pkgkafka "SolSignal/pkg/kafka"
)

// KafkaSignalsHandler consumes published signals and writes them to storage.
type KafkaSignalsHandler struct {
	topic   string
	storage domrepo.SignalStorage
	metrics domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, storage domrepo.SignalStorage, metrics domrepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// incoming message schema matches signalPayload on the publisher side
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol     string   `json:"symbol"`
		TS         int64    `json:"ts"`
		Action     string   `json:"action"`
		Confidence float64  `json:"confidence"`
		Price      float64  `json:"price"`
		RSI        float64  `json:"rsi"`
		RSIState   string   `json:"rsi_state"`
		MACDHist   float64  `json:"macd_hist"`
		MACDState  string   `json:"macd_state"`
		Trend      string   `json:"trend"`
		TrendConf  float64  `json:"trend_conf"`
		Bullish    int      `json:"bullish"`
		Bearish    int      `json:"bearish"`
		Ensemble   *float64 `json:"ensemble"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.TS > 1e11 { // ms
		m.TS = m.TS / 1000
	}
	// E2E latency from signal time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.TS, 0)).Seconds())

	sig := &models.TradingSignal{
		Symbol:     m.Symbol,
		Timestamp:  time.Unix(m.TS, 0).UTC(),
		Price:      m.Price,
		Action:     models.Action(m.Action),
		Confidence: m.Confidence,
		RSI:        models.IndicatorReading{Value: m.RSI, State: m.RSIState},
		MACD:       models.IndicatorReading{Value: m.MACDHist, State: m.MACDState},
		Trend: models.TrendPrediction{
			Label:      m.Trend,
			Confidence: m.TrendConf,
		},
		Predictions: models.Prediction{
			Symbol:       m.Symbol,
			Timestamp:    time.Unix(m.TS, 0).UTC(),
			CurrentPrice: m.Price,
			Ensemble:     m.Ensemble,
			Trend: models.TrendPrediction{
				Label:      m.Trend,
				Confidence: m.TrendConf,
			},
		},
		BullishPoints: m.Bullish,
		BearishPoints: m.Bearish,
	}
	if m.Ensemble == nil {
		sig.Predictions.Reason = models.NoPredictionReason
	}

	start := time.Now()
	err := h.storage.Store(ctx, sig)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordSignalSent("clickhouse", m.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)

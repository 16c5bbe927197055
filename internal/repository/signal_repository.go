package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/domain/repository"
	pkgkafka "SolSignal/pkg/kafka"
)

// ClickHouseSignalStorage implements SignalStorage for ClickHouse.
type ClickHouseSignalStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseSignalStorage creates ClickHouse signal storage.
func NewClickHouseSignalStorage(db *sql.DB, table string) repository.SignalStorage {
	return &ClickHouseSignalStorage{db: db, table: table}
}

func (s *ClickHouseSignalStorage) Init(ctx context.Context) error {
	return nil // Schema init at app startup
}

const signalCols = "(ts, symbol, action, confidence, price, rsi, rsi_state, macd_hist, macd_state, trend, trend_conf, bullish, bearish, ensemble, event_id, seq)"

func signalArgs(sig *models.TradingSignal) []interface{} {
	// event_id and seq give ReplacingMergeTree a dedup key per (symbol, bar)
	eventID := fmt.Sprintf("%s-%d", sig.Symbol, sig.Timestamp.Unix())
	var ensemble interface{}
	if sig.Predictions.Ensemble != nil {
		ensemble = *sig.Predictions.Ensemble
	}
	return []interface{}{
		sig.Timestamp,
		sig.Symbol,
		string(sig.Action),
		sig.Confidence,
		sig.Price,
		sig.RSI.Value,
		sig.RSI.State,
		sig.MACD.Value,
		sig.MACD.State,
		sig.Trend.Label,
		sig.Trend.Confidence,
		uint8(sig.BullishPoints),
		uint8(sig.BearishPoints),
		ensemble,
		eventID,
		uint64(sig.Timestamp.Unix()),
	}
}

func (s *ClickHouseSignalStorage) Store(ctx context.Context, sig *models.TradingSignal) error {
	q := fmt.Sprintf("INSERT INTO %s %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, signalCols)
	_, err := s.db.ExecContext(ctx, q, signalArgs(sig)...)
	return err
}

func (s *ClickHouseSignalStorage) StoreBatch(ctx context.Context, signals []*models.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(signals); start += chunkSize {
		end := start + chunkSize
		if end > len(signals) {
			end = len(signals)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*16)
		for _, sig := range signals[start:end] {
			if sig == nil || sig.Symbol == "" || sig.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, signalArgs(sig)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s %s VALUES %s", s.table, signalCols, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseSignalStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TradingSignal, error) {
	q := fmt.Sprintf(`SELECT ts, symbol, action, confidence, price, rsi, rsi_state, macd_hist, macd_state, trend, trend_conf, bullish, bearish, ensemble
        FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*models.TradingSignal
	for rows.Next() {
		var (
			sig      models.TradingSignal
			action   string
			bullish  uint8
			bearish  uint8
			ensemble sql.NullFloat64
		)
		if err := rows.Scan(
			&sig.Timestamp, &sig.Symbol, &action, &sig.Confidence, &sig.Price,
			&sig.RSI.Value, &sig.RSI.State, &sig.MACD.Value, &sig.MACD.State,
			&sig.Trend.Label, &sig.Trend.Confidence, &bullish, &bearish, &ensemble,
		); err != nil {
			return nil, err
		}
		sig.Action = models.Action(action)
		sig.BullishPoints = int(bullish)
		sig.BearishPoints = int(bearish)
		sig.Predictions = models.Prediction{
			Symbol:       sig.Symbol,
			Timestamp:    sig.Timestamp,
			CurrentPrice: sig.Price,
			Trend:        sig.Trend,
		}
		if ensemble.Valid {
			v := ensemble.Float64
			sig.Predictions.Ensemble = &v
		} else {
			sig.Predictions.Reason = models.NoPredictionReason
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

func (s *ClickHouseSignalStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaSignalPublisher implements SignalPublisher for Kafka.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalPublisher creates a Kafka publisher.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) repository.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func signalPayload(sig *models.TradingSignal) map[string]interface{} {
	payload := map[string]interface{}{
		"symbol":     sig.Symbol,
		"ts":         sig.Timestamp.Unix(),
		"action":     string(sig.Action),
		"confidence": sig.Confidence,
		"price":      sig.Price,
		"rsi":        sig.RSI.Value,
		"rsi_state":  sig.RSI.State,
		"macd_hist":  sig.MACD.Value,
		"macd_state": sig.MACD.State,
		"trend":      sig.Trend.Label,
		"trend_conf": sig.Trend.Confidence,
		"bullish":    sig.BullishPoints,
		"bearish":    sig.BearishPoints,
	}
	if sig.Predictions.Ensemble != nil {
		payload["ensemble"] = *sig.Predictions.Ensemble
	}
	return payload
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, sig *models.TradingSignal) error {
	return p.producer.Publish(ctx, p.topic, []byte(sig.Symbol), signalPayload(sig))
}

func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, signals []*models.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, sig := range signals {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(sig.Symbol),
			Value: signalPayload(sig),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

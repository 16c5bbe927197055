package repository

import (
	"context"
	"time"

	"SolSignal/internal/domain/models"
)

// SignalPublisher pushes generated signals to downstream consumers, either
// one at a time or batched per scan cycle. Close flushes pending sends.
type SignalPublisher interface {
	Publish(ctx context.Context, s *models.TradingSignal) error
	PublishBatch(ctx context.Context, signals []*models.TradingSignal) error
	Close() error
}

// SignalStorage persists signals so history survives restarts. Init runs on
// every boot and must tolerate already-existing tables.
type SignalStorage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, s *models.TradingSignal) error
	StoreBatch(ctx context.Context, signals []*models.TradingSignal) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TradingSignal, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics is the counter surface the pipeline reports into. Implementations
// must be safe for concurrent use.
type Metrics interface {
	RecordSignalSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

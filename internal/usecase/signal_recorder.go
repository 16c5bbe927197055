package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SolSignal/internal/domain/models"
	drepo "SolSignal/internal/domain/repository"
)

// ErrHistoryDisabled is returned by History unless signals are recorded to
// ClickHouse.
var ErrHistoryDisabled = errors.New("signal history requires the clickhouse backend")

// SignalRecorder routes generated signals to the configured history
// backend: "kafka" publishes them, "clickhouse" stores them, "none"
// discards them so only the live API sees signals.
type SignalRecorder struct {
	pub     drepo.SignalPublisher
	store   drepo.SignalStorage
	metrics drepo.Metrics
	backend string
}

func NewSignalRecorder(
	pub drepo.SignalPublisher,
	store drepo.SignalStorage,
	metrics drepo.Metrics,
	backend string,
) *SignalRecorder {
	return &SignalRecorder{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process records a single signal.
func (r *SignalRecorder) Process(ctx context.Context, sig *models.TradingSignal) error {
	if sig == nil {
		return fmt.Errorf("signal is nil")
	}
	if r.backend == "none" {
		return nil
	}

	start := time.Now()
	var err error
	switch r.backend {
	case "kafka":
		err = r.pub.Publish(ctx, sig)
	case "clickhouse":
		err = r.store.Store(ctx, sig)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}
	return r.finish("record", start, err, sig)
}

// ProcessBatch records a scan cycle's worth of signals in one backend call.
func (r *SignalRecorder) ProcessBatch(ctx context.Context, signals []*models.TradingSignal) error {
	if len(signals) == 0 || r.backend == "none" {
		return nil
	}

	start := time.Now()
	var err error
	switch r.backend {
	case "kafka":
		err = r.pub.PublishBatch(ctx, signals)
	case "clickhouse":
		err = r.store.StoreBatch(ctx, signals)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}
	return r.finish("record_batch", start, err, signals...)
}

// finish folds delivery outcome into metrics and wraps the error under op.
func (r *SignalRecorder) finish(op string, start time.Time, err error, signals ...*models.TradingSignal) error {
	if err != nil {
		r.metrics.RecordError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, sig := range signals {
		r.metrics.RecordSignalSent(r.backend, sig.Symbol)
	}
	r.metrics.RecordLatency(op, time.Since(start).Seconds())
	return nil
}

// History reads stored signals. Only the clickhouse backend can serve reads.
func (r *SignalRecorder) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TradingSignal, error) {
	if r.store == nil || r.backend != "clickhouse" {
		return nil, ErrHistoryDisabled
	}
	return r.store.Query(ctx, symbol, from, to, limit)
}

// Close releases whichever sinks were configured.
func (r *SignalRecorder) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

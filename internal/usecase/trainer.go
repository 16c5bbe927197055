package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "SolSignal/internal/domain/repository"
	svcmetrics "SolSignal/internal/service/metrics"
	"SolSignal/internal/services/ensemble"
	"SolSignal/internal/services/indicators"
	pkgcache "SolSignal/pkg/cache"
	applogger "SolSignal/pkg/logger"
)

// ErrTrainingBusy means another training run holds the per-symbol lock.
var ErrTrainingBusy = errors.New("training already in progress")

// Trainer fits a fresh model set from recent history and installs it through
// the ModelManager. Requests keep serving the previous set until the swap.
type Trainer struct {
	source   domrepo.CandleSource
	manager  *ModelManager
	cache    pkgcache.Service
	metrics  domrepo.Metrics
	l        *applogger.Logger
	cfg      ensemble.TrainConfig
	defaultN int
	lockTTL  time.Duration
}

func NewTrainer(source domrepo.CandleSource, manager *ModelManager, cache pkgcache.Service, metrics domrepo.Metrics, l *applogger.Logger) *Trainer {
	svcmetrics.Register()
	return &Trainer{
		source:   source,
		manager:  manager,
		cache:    cache,
		metrics:  metrics,
		l:        l,
		cfg:      ensemble.DefaultTrainConfig(),
		defaultN: 1000,
		lockTTL:  10 * time.Minute,
	}
}

// SetDefaultN overrides the bar count used when a request does not name one.
func (t *Trainer) SetDefaultN(n int) {
	if n > 0 {
		t.defaultN = n
	}
}

type TrainParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

// Train runs one training pass. Concurrent runs for the same symbol are
// deduplicated with a cache lock; the loser gets ErrTrainingBusy.
func (t *Trainer) Train(ctx context.Context, p TrainParams) (ensemble.TrainReport, error) {
	if p.Symbol == "" {
		return ensemble.TrainReport{}, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = t.defaultN
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	lockKey := "train:" + p.Symbol
	ok, err := t.cache.TryLock(ctx, lockKey, t.lockTTL)
	if err != nil {
		// lock backend down; train anyway rather than refuse
		t.l.Warn("train lock unavailable", applogger.String("symbol", p.Symbol), applogger.Error(err))
	} else if !ok {
		return ensemble.TrainReport{}, fmt.Errorf("train %s: %w", p.Symbol, ErrTrainingBusy)
	} else {
		defer func() { _ = t.cache.Unlock(context.Background(), lockKey) }()
	}

	start := time.Now()
	candles, err := t.source.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		t.metrics.RecordError("candles")
		return ensemble.TrainReport{}, fmt.Errorf("get candles: %w", err)
	}
	frame, err := indicators.Compute(p.Symbol, candles)
	if err != nil {
		return ensemble.TrainReport{}, err
	}

	set, rep, err := ensemble.Train(p.Symbol, frame, t.cfg)
	if err != nil {
		t.metrics.RecordError("train")
		return rep, err
	}
	if err := t.manager.Install(ctx, set); err != nil {
		t.metrics.RecordError("install")
		return rep, fmt.Errorf("install model set: %w", err)
	}

	t.metrics.RecordLatency("train_models", time.Since(start).Seconds())
	svcmetrics.TrainingDuration.WithLabelValues(p.Symbol).Observe(time.Since(start).Seconds())
	svcmetrics.TrainingRows.WithLabelValues(p.Symbol, "train").Set(float64(rep.TrainRows))
	svcmetrics.TrainingRows.WithLabelValues(p.Symbol, "test").Set(float64(rep.TestRows))
	t.l.Info("model set trained",
		applogger.String("symbol", p.Symbol),
		applogger.String("tf", string(p.Timeframe)),
		applogger.Int("bars", rep.Bars),
		applogger.Int("warmup_rows", rep.WarmupRows),
		applogger.Int("train_rows", rep.TrainRows),
		applogger.Int("test_rows", rep.TestRows),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return rep, nil
}

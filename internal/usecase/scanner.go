package usecase

import (
	"context"
	"sync"
	"time"

	"SolSignal/internal/domain/models"
	drepo "SolSignal/internal/domain/repository"
	mid "SolSignal/internal/middleware"
	pkgcache "SolSignal/pkg/cache"
	applogger "SolSignal/pkg/logger"
)

// latestSignalPrefix keys the freshest signal per symbol in the shared cache.
const latestSignalPrefix = "signal:latest:"

// LatestSignalKey returns the cache key holding the freshest signal for symbol.
func LatestSignalKey(symbol string) string { return latestSignalPrefix + symbol }

// Broadcaster pushes a payload to connected live clients.
type Broadcaster interface {
	Broadcast(v interface{})
}

// Scanner sweeps the token registry on a fixed interval, generates a signal
// for every tracked token and hands the results to the history backend.
type Scanner struct {
	engine   *SignalEngine
	rec      *SignalRecorder
	metrics  drepo.Metrics
	pipe     *mid.SignalPipeline
	l        *applogger.Logger
	tokens   []models.Token
	interval time.Duration
	tf       drepo.Timeframe
	bars     int

	hub    Broadcaster
	latest pkgcache.Service

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScanner creates a new Scanner instance.
func NewScanner(
	engine *SignalEngine,
	rec *SignalRecorder,
	metrics drepo.Metrics,
	pipe *mid.SignalPipeline,
	lgr *applogger.Logger,
	tokens []models.Token,
	interval time.Duration,
	tf drepo.Timeframe,
	bars int,
) *Scanner {
	if interval <= 0 {
		interval = time.Minute
	}
	if bars <= 0 {
		bars = 300
	}
	return &Scanner{
		engine:   engine,
		rec:      rec,
		metrics:  metrics,
		pipe:     pipe,
		l:        lgr,
		tokens:   tokens,
		interval: interval,
		tf:       drepo.NormalizeTimeframe(string(tf)),
		bars:     bars,
		stopCh:   make(chan struct{}),
	}
}

// SetBroadcaster attaches a live-update sink for freshly generated signals.
func (s *Scanner) SetBroadcaster(b Broadcaster) { s.hub = b }

// SetLatestCache attaches the shared cache holding the freshest signal per symbol.
func (s *Scanner) SetLatestCache(c pkgcache.Service) { s.latest = c }

func (s *Scanner) Start(ctx context.Context) error {
	if s.pipe != nil {
		s.pipe.Start(ctx)
	}
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			s.scan(ctx)
		}
	}
}

func (s *Scanner) scan(ctx context.Context) {
	for _, tok := range s.tokens {
		sig, err := s.engine.GenerateSignal(ctx, GenerateSignalParams{
			Symbol:    tok.Symbol,
			N:         s.bars,
			Timeframe: s.tf,
		})
		if err != nil {
			s.metrics.RecordError("scan")
			s.l.Warn("scan failed for symbol",
				applogger.String("symbol", tok.Symbol),
				applogger.Error(err))
			continue
		}

		if s.pipe != nil {
			_ = s.pipe.Process(ctx, sig)
		} else {
			_ = s.rec.Process(ctx, sig)
		}

		if s.hub != nil {
			s.hub.Broadcast(map[string]interface{}{
				"type":      "signal",
				"data":      sig,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
		if s.latest != nil {
			// three intervals of grace before a stale snapshot disappears
			if err := s.latest.Set(ctx, LatestSignalKey(sig.Symbol), sig, 3*s.interval); err != nil {
				s.l.Warn("latest-signal cache write failed",
					applogger.String("symbol", sig.Symbol),
					applogger.Error(err))
			}
		}

		s.l.Debug("scanned symbol",
			applogger.String("symbol", tok.Symbol),
			applogger.String("action", string(sig.Action)),
			applogger.Float64("confidence", sig.Confidence))
	}
}

func (s *Scanner) Stop() error {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

// Recorder returns the underlying SignalRecorder for lifecycle management.
func (s *Scanner) Recorder() *SignalRecorder { return s.rec }

// Shutdown stops the sweep loop and the pipeline.
func (s *Scanner) Shutdown(ctx context.Context) error {
	if s.pipe != nil {
		s.pipe.Stop()
	}
	return s.Stop()
}

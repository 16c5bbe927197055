package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SolSignal/internal/domain/models"
	domrepo "SolSignal/internal/domain/repository"
)

// Proc is the downstream half of the pipeline, usually the signal recorder.
type Proc interface {
	Process(ctx context.Context, sig *models.TradingSignal) error
}

const (
	defaultMaxRPS     = 20
	defaultBufferSize = 1000
)

// SignalPipeline sits between the scanner and signal delivery. Every signal
// is validated, optionally transformed, throttled per symbol, and handed to
// the processor. Failed hand-offs are buffered and replayed in the
// background until the processor recovers.
type SignalPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	transform func(*models.TradingSignal) *models.TradingSignal

	maxRPS  int
	minGap  time.Duration
	bufSize int
	bufCh   chan *models.TradingSignal

	mu       sync.Mutex
	lastSeen map[string]time.Time
	started  bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

type PipelineOption func(*SignalPipeline)

// WithMaxRPS caps accepted signals per second for each symbol. Excess
// signals are dropped, not queued.
func WithMaxRPS(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize bounds the replay buffer used while downstream is failing.
func WithBufferSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform rewrites each signal before delivery. The result is
// validated again, so a transform cannot push bad data downstream.
func WithTransform(fn func(*models.TradingSignal) *models.TradingSignal) PipelineOption {
	return func(p *SignalPipeline) { p.transform = fn }
}

func NewSignalPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SignalPipeline {
	p := &SignalPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   defaultMaxRPS,
		bufSize:  defaultBufferSize,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.minGap = time.Second / time.Duration(p.maxRPS)
	p.bufCh = make(chan *models.TradingSignal, p.bufSize)
	return p
}

// Process runs one signal through the pipeline. Throttled signals are
// dropped with a nil error. Delivery failures are reported to the caller
// after the signal has been queued for replay.
func (p *SignalPipeline) Process(ctx context.Context, sig *models.TradingSignal) error {
	start := time.Now()
	if err := validateSignal(sig); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		sig = p.transform(sig)
		if err := validateSignal(sig); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(sig.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, sig); err != nil {
		p.buffer(sig)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// allow applies the per-symbol rate limit.
func (p *SignalPipeline) allow(symbol string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.minGap {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

// buffer queues sig for background replay, dropping it when full.
func (p *SignalPipeline) buffer(sig *models.TradingSignal) {
	p.metrics.RecordError("pipeline_process")
	select {
	case p.bufCh <- sig:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// Start launches the replay worker. Calling Start twice is a no-op.
func (p *SignalPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	already := p.started
	p.started = true
	p.mu.Unlock()
	if already {
		return
	}
	go p.flushLoop(ctx)
}

// Stop halts the replay worker. Anything still buffered is lost.
func (p *SignalPipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// flushLoop replays buffered signals, backing off while downstream keeps
// failing. Signals that fail again go to the back of the buffer, so replay
// order is not guaranteed.
func (p *SignalPipeline) flushLoop(ctx context.Context) {
	const (
		minBackoff = 50 * time.Millisecond
		maxBackoff = 2 * time.Second
	)
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case sig := <-p.bufCh:
			if sig == nil {
				continue
			}
			if err := p.proc.Process(ctx, sig); err == nil {
				backoff = minBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			select {
			case p.bufCh <- sig:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
			select {
			case <-p.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
		}
	}
}

func validateSignal(sig *models.TradingSignal) error {
	if sig == nil {
		return fmt.Errorf("signal nil")
	}
	if sig.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if sig.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if sig.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return fmt.Errorf("confidence out of range")
	}
	switch sig.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return fmt.Errorf("unknown action %q", sig.Action)
	}
	return nil
}

var _ Proc = (*SignalPipeline)(nil)

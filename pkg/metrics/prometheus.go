package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signalsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solsignal_signals_sent_total",
		Help: "Signals delivered, per backend and symbol.",
	}, []string{"backend", "symbol"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solsignal_errors_total",
		Help: "Pipeline errors by kind.",
	}, []string{"type"})

	lastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solsignal_last_price",
		Help: "Most recent close observed per symbol.",
	}, []string{"symbol"})

	opSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solsignal_operation_duration_seconds",
		Help:    "Latency of pipeline operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Recorder reports pipeline counters to the process-wide Prometheus
// registry. Collectors register once at package init, so any number of
// Recorder values share the same series.
type Recorder struct{}

func New() *Recorder { return &Recorder{} }

func (*Recorder) RecordSignalSent(backend, symbol string) {
	signalsSent.WithLabelValues(backend, symbol).Inc()
}

func (*Recorder) RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

func (*Recorder) RecordLastPrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}

func (*Recorder) RecordLatency(op string, seconds float64) {
	opSeconds.WithLabelValues(op).Observe(seconds)
}

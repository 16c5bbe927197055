package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	SignalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "solsignal",
			Subsystem: "signals",
			Name:      "latency_seconds",
			Help:      "Latency of signal endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SignalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solsignal",
			Subsystem: "signals",
			Name:      "errors_total",
			Help:      "Errors by signal endpoint",
		},
		[]string{"endpoint"},
	)

	Recommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solsignal",
			Subsystem: "signals",
			Name:      "recommendations_total",
			Help:      "Generated recommendations by side",
		},
		[]string{"symbol", "action"},
	)

	AbsentMembers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solsignal",
			Subsystem: "signals",
			Name:      "absent_members_total",
			Help:      "Predictions served with an ensemble member missing",
		},
		[]string{"member"},
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "solsignal",
			Subsystem: "models",
			Name:      "training_seconds",
			Help:      "Wall time of model set training",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"symbol"},
	)

	TrainingRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "solsignal",
			Subsystem: "models",
			Name:      "training_rows",
			Help:      "Partition sizes of the last training run",
		},
		[]string{"symbol", "partition"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SignalLatency,
			SignalErrors,
			Recommendations,
			AbsentMembers,
			TrainingDuration,
			TrainingRows,
		)
	})
}

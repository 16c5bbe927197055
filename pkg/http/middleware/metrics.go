package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solsignal_http_requests_total",
			Help: "HTTP requests served, by route template and status.",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solsignal_http_request_duration_seconds",
			Help:    "HTTP request latency, by route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "solsignal_http_in_flight_requests",
			Help: "Requests currently being served.",
		},
	)
)

// Metrics records per-route request counts and latency. Series are keyed
// by the echo route template, so /api/signals/:symbol stays one label
// value no matter how many symbols get queried.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method
			status := strconv.Itoa(responseStatus(c, err))

			httpRequestsTotal.WithLabelValues(route, method, status).Inc()
			httpRequestSeconds.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			httpInFlight.Dec()
			return err
		}
	}
}

// responseStatus resolves the status a request will be answered with. When
// a handler returns an error, echo renders the response after the
// middleware chain unwinds, so the committed status is not visible yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

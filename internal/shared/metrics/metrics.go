package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Generation metrics
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	FallbacksTotal    *prometheus.CounterVec
	PollAttemptsTotal prometheus.Counter

	// Stock resolution metrics
	StockLookupsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reelforge"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "tasks_total",
				Help:      "Total number of generation tasks by terminal status",
			},
			[]string{"status", "fallback"},
		),
		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "task_duration_seconds",
				Help:      "Generation task duration in seconds",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"status"},
		),
		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "fallbacks_total",
				Help:      "Total number of fallback executions by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		PollAttemptsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "poll_attempts_total",
				Help:      "Total number of operation poll attempts",
			},
		),

		StockLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stock",
				Name:      "lookups_total",
				Help:      "Total number of stock footage lookups by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTask records a terminal generation task.
func (m *Metrics) RecordTask(status string, fallback bool, duration time.Duration) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	m.TasksTotal.WithLabelValues(status, fb).Inc()
	m.TaskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStockLookup records a stock footage lookup.
func (m *Metrics) RecordStockLookup(provider, outcome string) {
	m.StockLookupsTotal.WithLabelValues(provider, outcome).Inc()
}

func statusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

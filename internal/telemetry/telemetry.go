// Package telemetry exposes the trading core's Prometheus metrics and the
// background samplers that keep its system/user gauges current.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter, histogram, and gauge the trading core
// publishes, registered against a dedicated registry rather than the global
// default so tests can spin up disposable instances.
type Metrics struct {
	registry *prometheus.Registry

	SwapDuration *prometheus.HistogramVec
	SwapVolume   *prometheus.CounterVec
	SwapSuccess  *prometheus.CounterVec
	SwapFailure  *prometheus.CounterVec

	APILatency *prometheus.HistogramVec
	APIErrors  *prometheus.CounterVec

	ActiveUsers      prometheus.Gauge
	UserOperations   *prometheus.CounterVec
	CPUUsagePercent  prometheus.Gauge
	MemUsagePercent  prometheus.Gauge
	DiskUsagePercent prometheus.Gauge
}

// New builds a Metrics set and registers every collector on its own
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		SwapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swap_duration_seconds",
			Help:    "Time spent executing a venue swap.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue", "network"}),
		SwapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_volume_total",
			Help: "Cumulative input amount swapped, denominated in the from-token.",
		}, []string{"venue", "network", "pair"}),
		SwapSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_success_total",
			Help: "Count of successful venue swaps.",
		}, []string{"venue", "network"}),
		SwapFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_failure_total",
			Help: "Count of failed venue swaps by error kind.",
		}, []string{"venue", "network", "error_type"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "API handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		APIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Count of API handler errors by error kind.",
		}, []string{"endpoint", "error_type"}),
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_users",
			Help: "Users that have touched their account recently.",
		}),
		UserOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_operations_total",
			Help: "Count of user-initiated operations by type.",
		}, []string{"type"}),
		CPUUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "Host CPU utilization percentage.",
		}),
		MemUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_percent",
			Help: "Host memory utilization percentage.",
		}),
		DiskUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "disk_usage_percent",
			Help: "Host disk utilization percentage for the data directory's filesystem.",
		}),
	}

	reg.MustRegister(
		m.SwapDuration, m.SwapVolume, m.SwapSuccess, m.SwapFailure,
		m.APILatency, m.APIErrors,
		m.ActiveUsers, m.UserOperations,
		m.CPUUsagePercent, m.MemUsagePercent, m.DiskUsagePercent,
	)
	return m
}

// Handler returns the scrape endpoint for this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSwapSuccess records a completed swap's duration, volume, and outcome.
func (m *Metrics) RecordSwapSuccess(venueName, network, pair string, durationSeconds float64, inputAmount float64) {
	m.SwapDuration.WithLabelValues(venueName, network).Observe(durationSeconds)
	m.SwapVolume.WithLabelValues(venueName, network, pair).Add(inputAmount)
	m.SwapSuccess.WithLabelValues(venueName, network).Inc()
}

// RecordSwapFailure records a failed swap attempt.
func (m *Metrics) RecordSwapFailure(venueName, network, errorType string, durationSeconds float64) {
	m.SwapDuration.WithLabelValues(venueName, network).Observe(durationSeconds)
	m.SwapFailure.WithLabelValues(venueName, network, errorType).Inc()
}

// RecordAPICall records one API handler invocation.
func (m *Metrics) RecordAPICall(endpoint, method string, durationSeconds float64, errorType string) {
	m.APILatency.WithLabelValues(endpoint, method).Observe(durationSeconds)
	if errorType != "" {
		m.APIErrors.WithLabelValues(endpoint, errorType).Inc()
	}
}

// RecordUserOperation increments the counter for a user-initiated operation
// kind (e.g. "order.create", "p2p.take").
func (m *Metrics) RecordUserOperation(kind string) {
	m.UserOperations.WithLabelValues(kind).Inc()
}

// Package metrics exposes Prometheus collectors for the bootstrap service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tierAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_tier_attempts_total",
			Help: "Total acquisition tier attempts, labeled by resource, tier and result.",
		},
		[]string{"resource", "tier", "result"},
	)

	tierDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootstrap_tier_duration_seconds",
			Help:    "Histogram of acquisition tier probe latencies.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"resource", "tier"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_resolutions_total",
			Help: "Total resolution passes, labeled by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	degradedMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bootstrap_degraded_mode",
			Help: "1 when the process runs in degraded mode.",
		},
	)

	databaseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_database_events_total",
			Help: "Passive database observer events, labeled by kind (error, disconnect).",
		},
		[]string{"kind"},
	)

	capabilityUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_capability_unavailable_total",
			Help: "Requests that hit a capability missing because of degraded startup.",
		},
		[]string{"capability"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTier records a single tier attempt.
func ObserveTier(resource, tier, result string, duration time.Duration) {
	tierAttemptsTotal.WithLabelValues(resource, tier, result).Inc()
	tierDurationSeconds.WithLabelValues(resource, tier).Observe(duration.Seconds())
}

// ObserveResolution records the outcome of a resolution pass.
func ObserveResolution(resource, outcome string) {
	resolutionsTotal.WithLabelValues(resource, outcome).Inc()
}

// SetDegraded mirrors the process degraded flag.
func SetDegraded(degraded bool) {
	if degraded {
		degradedMode.Set(1)
		return
	}
	degradedMode.Set(0)
}

// ObserveDatabaseEvent counts passive observer callbacks.
func ObserveDatabaseEvent(kind string) {
	databaseEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveCapabilityUnavailable counts a use of a missing capability.
func ObserveCapabilityUnavailable(capability string) {
	capabilityUnavailableTotal.WithLabelValues(capability).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

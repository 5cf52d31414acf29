// Package metrics exposes Prometheus collectors for the data-access core.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fitfi_data"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	fetchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Entity fetches by family, satisfying origin and cache use.",
		},
		[]string{"family", "origin", "cached"},
	)

	fetchTierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "tier_failures_total",
			Help:      "Failed tier attempts that degraded a fetch to the next tier.",
		},
		[]string{"family", "tier"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of entity fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
		},
		[]string{"family"},
	)

	remoteAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "attempts_total",
			Help:      "Individual remote attempts made by the retry loop.",
		},
		[]string{"outcome"},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held by the cache store, expired ones included.",
		},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		fetchRequests,
		fetchTierFailures,
		fetchDuration,
		remoteAttempts,
		cacheEntries,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFetch records a completed fetch.
func RecordFetch(family, origin string, cached bool, duration time.Duration) {
	if family == "" {
		family = "unknown"
	}
	if duration <= 0 {
		duration = time.Microsecond
	}
	fetchRequests.WithLabelValues(family, origin, strconv.FormatBool(cached)).Inc()
	fetchDuration.WithLabelValues(family).Observe(duration.Seconds())
}

// RecordTierFailure records a tier that failed and was skipped.
func RecordTierFailure(family, tier string) {
	fetchTierFailures.WithLabelValues(family, tier).Inc()
}

// RecordRemoteAttempt records a single attempt outcome: success, error or timeout.
func RecordRemoteAttempt(outcome string) {
	remoteAttempts.WithLabelValues(outcome).Inc()
}

// SetCacheEntries publishes the current cache size.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// HTTPStarted marks a request as in flight and returns the completion hook.
func HTTPStarted() func(method, path string, status int, duration time.Duration) {
	httpInFlight.Inc()
	return func(method, path string, status int, duration time.Duration) {
		httpInFlight.Dec()
		httpRequests.WithLabelValues(strings.ToUpper(method), path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(strings.ToUpper(method), path).Observe(duration.Seconds())
	}
}

// Package metrics exposes Prometheus instrumentation for the hub.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vertex_hub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vertex_hub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.6s
		},
		[]string{"method", "path"},
	)

	webhookAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "webhooks",
			Name:      "delivery_attempts_total",
			Help:      "Total webhook delivery attempts by outcome.",
		},
		[]string{"status"},
	)

	notificationSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "notifications",
			Name:      "sends_total",
			Help:      "Total notification sends by channel and outcome.",
		},
		[]string{"channel", "status"},
	)

	eventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total events accepted by the broker.",
		},
	)

	eventsMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "events",
			Name:      "matched_total",
			Help:      "Total subscription matches across all published events.",
		},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the broker queue or a subscription queue was full.",
		},
	)

	reportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "reports",
			Name:      "runs_total",
			Help:      "Total report executions by terminal status.",
		},
		[]string{"status"},
	)

	reportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vertex_hub",
			Subsystem: "reports",
			Name:      "run_duration_seconds",
			Help:      "Duration of report executions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~102s
		},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache hits, misses and evictions per tier.",
		},
		[]string{"tier", "op"},
	)

	connectorOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vertex_hub",
			Subsystem: "connectors",
			Name:      "operations_total",
			Help:      "Connector executions by type and outcome.",
		},
		[]string{"type", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpInFlight,
		httpRequests,
		httpDuration,
		webhookAttempts,
		notificationSends,
		eventsPublished,
		eventsMatched,
		eventsDropped,
		reportRuns,
		reportDuration,
		cacheOps,
		connectorOps,
	)
}

// Handler returns the Prometheus scrape handler for the hub registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// HTTPInFlight tracks the in-flight request gauge.
func HTTPInFlight(delta float64) {
	httpInFlight.Add(delta)
}

// RecordWebhookAttempt counts one webhook delivery attempt outcome.
func RecordWebhookAttempt(status string) {
	webhookAttempts.WithLabelValues(status).Inc()
}

// RecordNotificationSend counts one per-recipient notification outcome.
func RecordNotificationSend(channel, status string) {
	notificationSends.WithLabelValues(channel, status).Inc()
}

// RecordEventPublished counts an accepted event.
func RecordEventPublished() { eventsPublished.Inc() }

// RecordEventMatches counts subscription matches for one event.
func RecordEventMatches(n int) { eventsMatched.Add(float64(n)) }

// RecordEventDropped counts an event dropped under backpressure.
func RecordEventDropped() { eventsDropped.Inc() }

// RecordReportRun records a finished report execution.
func RecordReportRun(status string, elapsed time.Duration) {
	reportRuns.WithLabelValues(status).Inc()
	reportDuration.Observe(elapsed.Seconds())
}

// RecordCacheOp counts a cache hit/miss/eviction on a tier.
func RecordCacheOp(tier, op string) {
	cacheOps.WithLabelValues(tier, op).Inc()
}

// RecordConnectorOp counts a connector execution outcome.
func RecordConnectorOp(connectorType, status string) {
	connectorOps.WithLabelValues(connectorType, status).Inc()
}

// Package metrics provides Prometheus metrics for monitoring sessiondriver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive is the current number of live sessions.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiondriver_sessions_active",
		Help: "Number of currently live sessions",
	})

	// SessionsCreatedTotal counts successful NewSession round-trips.
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiondriver_sessions_created_total",
		Help: "Total number of sessions created",
	})

	// SessionsDestroyedTotal counts session removals, by reason.
	SessionsDestroyedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiondriver_sessions_destroyed_total",
			Help: "Total number of sessions removed, by reason",
		},
		[]string{"reason"}, // "deleted" | "expired"
	)

	// PortsAllocatedTotal counts successful port allocations.
	PortsAllocatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiondriver_ports_allocated_total",
		Help: "Total number of ports handed out by the port allocator",
	})

	// SpawnDuration tracks subprocess launch wall time.
	SpawnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sessiondriver_spawn_duration_seconds",
		Help:    "Time to spawn a WebDriver subprocess",
		Buckets: prometheus.DefBuckets,
	})

	// ReadinessWaitDuration tracks time spent polling for backend readiness.
	ReadinessWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sessiondriver_readiness_wait_seconds",
		Help:    "Time spent waiting for a backend to become ready",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// ForwardDuration tracks request forwarding latency by outcome.
	ForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiondriver_forward_duration_seconds",
			Help:    "Time spent forwarding a request to a backend, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // "ok" | "gateway_error" | "bad_request" | "internal_error"
	)
)

// Registry is the Prometheus registry this package's metrics are
// registered against. Using a dedicated registry (rather than the global
// default) keeps repeated test setups from panicking on double-registration.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		SessionsActive,
		SessionsCreatedTotal,
		SessionsDestroyedTotal,
		PortsAllocatedTotal,
		SpawnDuration,
		ReadinessWaitDuration,
		ForwardDuration,
	)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

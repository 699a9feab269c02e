// Package metrics defines the Prometheus collectors exported by the
// remote-scan engine.
//
// # Basic Usage
//
//	metrics.RemoteRequests.WithLabelValues("api.stripe.com", "GET", "2xx").Inc()
//
//	timer := metrics.NewTimer()
//	rows, err := engine.Run(ctx, fetcher)
//	metrics.ScanDuration.WithLabelValues("stripe").Observe(timer.Elapsed().Seconds())
//
// All collectors are registered with the default registry through promauto.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteRequests counts completed remote calls.
	// Labels: host, method, class (2xx, 4xx, 5xx or error)
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotescan_remote_requests_total",
			Help: "Total number of remote requests by status class",
		},
		[]string{"host", "method", "class"},
	)

	// RemoteRequestDuration tracks remote call latency in seconds.
	// Labels: host, method
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotescan_remote_request_duration_seconds",
			Help:    "Remote request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"host", "method"},
	)

	// RemoteRetries counts retry attempts after transient failures.
	// Labels: host
	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotescan_remote_retries_total",
			Help: "Total number of retried remote requests",
		},
		[]string{"host"},
	)

	// ConnectorStats mirrors the per-connector stats counters.
	// Labels: connector, metric (create_times, bytes_in, rows_in, rows_out)
	ConnectorStats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotescan_connector_stats_total",
			Help: "Per-connector usage counters",
		},
		[]string{"connector", "metric"},
	)

	// PagesFetched counts pages fetched by the pagination engine.
	// Labels: connector
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotescan_pages_fetched_total",
			Help: "Total number of result pages fetched",
		},
		[]string{"connector"},
	)

	// ScanDuration tracks end-to-end fetch time of a scan in seconds.
	// Labels: connector
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotescan_scan_duration_seconds",
			Help:    "Time spent fetching all pages of a scan",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector"},
	)

	// CircuitBreakerState reports 0 (closed), 1 (open) or 2 (half-open).
	// Labels: name
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remotescan_circuit_breaker_state",
			Help: "Circuit breaker state",
		},
		[]string{"name"},
	)
)

// StatusClass buckets an HTTP status code for the class label
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Timer measures elapsed wall time
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

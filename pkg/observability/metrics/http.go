package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry requests touch S3 and DynamoDB, so latencies run from a few
// milliseconds (list from a warm table) to seconds (purge).
var httpBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

var (
	// httpRequestDuration tracks public API latency.
	// Labels: method, route (mux template), status
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_registry_http_request_duration_seconds",
			Help:    "Public API request duration in seconds",
			Buckets: httpBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// httpRequestsTotal counts public API requests.
	// Labels: method, route (mux template), status
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_registry_http_requests_total",
			Help: "Public API requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adapter_registry_http_requests_in_flight",
			Help: "Public API requests being served",
		},
	)
)

// TrackHTTPRequest marks a request as in flight. The returned function
// records its completion with the final status.
func TrackHTTPRequest(method, route string) func(status int) {
	httpRequestsInFlight.Inc()
	start := time.Now()
	return func(status int) {
		httpRequestsInFlight.Dec()
		code := strconv.Itoa(status)
		httpRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	}
}

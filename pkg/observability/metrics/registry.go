// Package metrics provides the Prometheus collectors of the adapter registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the set of collectors served on the management /metrics
// endpoint. The package collectors are also registered with the default
// registerer by promauto, so a Registry only decides what is exposed.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry exposes the HTTP and registry collectors of this package with
// the Go runtime, process and build info collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		httpRequestDuration, httpRequestsTotal, httpRequestsInFlight,
		ingestTotal, ingestConflicts, uploadsTotal, indexDeletedTotal, workerMessagesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return &Registry{reg: reg}
}

// Handler serves the registry in the Prometheus text or OpenMetrics format.
// A failing collector is skipped rather than failing the whole scrape.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

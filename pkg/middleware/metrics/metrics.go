// Package metrics records Prometheus HTTP metrics per route.
package metrics

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nimburion/adapter-registry/pkg/middleware"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
)

// Metrics creates middleware that records request duration, count and
// in-flight requests. The route label is the mux template so that path
// parameters do not multiply series.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := metrics.TrackHTTPRequest(r.Method, RoutePath(r))
			rec := middleware.NewStatusRecorder(w)
			defer func() { done(rec.Status()) }()

			next.ServeHTTP(rec, r)
		})
	}
}

// RoutePath returns the matched mux route template, or the raw path.
func RoutePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

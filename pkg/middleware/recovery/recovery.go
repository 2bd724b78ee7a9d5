// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/nimburion/adapter-registry/pkg/controller"
	"github.com/nimburion/adapter-registry/pkg/middleware"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/registry"
)

// Recovery creates middleware that recovers from panics in HTTP handlers,
// logs the panic with its stack trace and answers with an internal error.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := middleware.NewStatusRecorder(w)
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.WithContext(r.Context()).Error("panic recovered",
						"panic", p,
						"stack", string(debug.Stack()),
					)
					if !rec.Written() {
						_ = controller.Error(rec, r, registry.Internal("An unexpected error occurred.", nil))
					}
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// Package logging writes one structured log entry per HTTP request.
package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/adapter-registry/pkg/middleware"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// Config configures request logging middleware behavior.
type Config struct {
	Enabled bool
	// ExcludedPathPrefixes disables logging for matching paths (e.g. /health).
	ExcludedPathPrefixes []string
}

// DefaultConfig returns default request logging behavior.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Logging creates middleware with the default configuration.
func Logging(log logger.Logger) func(http.Handler) http.Handler {
	return WithConfig(log, DefaultConfig())
}

// WithConfig creates middleware that logs method, path, status, duration and
// remote address once the request completes. 5xx responses are logged at error level.
func WithConfig(log logger.Logger, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.ExcludedPathPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			rec := middleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			reqLog := log.WithContext(r.Context())
			if rec.Status() >= http.StatusInternalServerError {
				reqLog.Error("request failed", fields...)
				return
			}
			reqLog.Info("request completed", fields...)
		})
	}
}

package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nimburion/adapter-registry/pkg/auth"
	"github.com/nimburion/adapter-registry/pkg/config"
	"github.com/nimburion/adapter-registry/pkg/controller"
	"github.com/nimburion/adapter-registry/pkg/middleware/logging"
	"github.com/nimburion/adapter-registry/pkg/middleware/metrics"
	"github.com/nimburion/adapter-registry/pkg/middleware/ratelimit"
	"github.com/nimburion/adapter-registry/pkg/middleware/recovery"
	"github.com/nimburion/adapter-registry/pkg/middleware/requestid"
	"github.com/nimburion/adapter-registry/pkg/middleware/tracing"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/registry"
)

// PublicOptions holds the collaborators of the public API router.
type PublicOptions struct {
	API        *API
	Authorizer *auth.Authorizer
	// Limiter is optional; requests are not rate limited when nil.
	Limiter ratelimit.RateLimiter
	Logger  logger.Logger
}

// NewPublicRouter builds the public API router. Every route passes through
// the middleware stack in this order:
//  1. Request ID
//  2. Logging
//  3. Recovery
//  4. Metrics
//  5. Tracing
//  6. Authorizer
//  7. Rate limit (keyed by principal)
func NewPublicRouter(opts PublicOptions) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = controller.Error(w, req, registry.NotFound("Not Found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = controller.Error(w, req, registry.BadRequest("Bad Request. Method not allowed."))
	})

	r.Use(
		requestid.RequestID(),
		logging.Logging(opts.Logger),
		recovery.Recovery(opts.Logger),
		metrics.Metrics(),
		tracing.Tracing(tracing.Config{TracerName: "adapter-registry-http"}),
		opts.Authorizer.Middleware,
	)
	if opts.Limiter != nil {
		r.Use(ratelimit.RateLimit(opts.Limiter, ratelimit.PrincipalOrIP))
	}

	opts.API.Register(r)
	return r
}

// NewPublicServer creates the public API server.
func NewPublicServer(cfg config.HTTPConfig, opts PublicOptions) *Server {
	return NewServer("public", Config{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, NewPublicRouter(opts), opts.Logger)
}

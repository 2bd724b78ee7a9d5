package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nimburion/adapter-registry/pkg/config"
	"github.com/nimburion/adapter-registry/pkg/controller"
	"github.com/nimburion/adapter-registry/pkg/health"
	"github.com/nimburion/adapter-registry/pkg/middleware/logging"
	"github.com/nimburion/adapter-registry/pkg/middleware/recovery"
	"github.com/nimburion/adapter-registry/pkg/middleware/requestid"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/version"
)

// ManagementOptions holds the collaborators of the management router.
type ManagementOptions struct {
	Health  *health.Registry
	Metrics *metrics.Registry
	Version version.Info
	Logger  logger.Logger
}

// NewManagementRouter builds the unauthenticated management router:
//   - /health: liveness, always 200
//   - /ready: readiness, 503 when a dependency check fails
//   - /metrics: Prometheus exposition
//   - /version: build metadata
func NewManagementRouter(opts ManagementOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(
		requestid.RequestID(),
		logging.WithConfig(opts.Logger, logging.Config{
			Enabled:              true,
			ExcludedPathPrefixes: []string{"/health", "/metrics"},
		}),
		recovery.Recovery(opts.Logger),
	)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = controller.Success(w, map[string]string{"status": string(health.StatusHealthy)})
	}).Methods(http.MethodGet)

	r.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		result := opts.Health.Check(req.Context())
		status := http.StatusOK
		if !result.Ready() {
			status = http.StatusServiceUnavailable
		}
		_ = controller.JSON(w, status, result)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_ = controller.Success(w, opts.Version)
	}).Methods(http.MethodGet)

	return r
}

// NewManagementServer creates the management server, with mutual TLS when
// configured.
func NewManagementServer(cfg config.ManagementConfig, opts ManagementOptions) (*Server, error) {
	serverCfg := Config{
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MTLSEnabled {
		tlsConfig, err := managementTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load management mTLS config: %w", err)
		}
		serverCfg.TLSConfig = tlsConfig
		opts.Logger.Info("management mTLS enabled")
	}
	return NewServer("management", serverCfg, NewManagementRouter(opts), opts.Logger), nil
}

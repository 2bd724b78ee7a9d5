package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/adapter-registry/pkg/config"
	"github.com/nimburion/adapter-registry/pkg/health"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/testutil"
	"github.com/nimburion/adapter-registry/pkg/version"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newManagementRouter(t *testing.T, indexErr error) http.Handler {
	t.Helper()
	registry := health.NewRegistry()
	registry.Register(health.NewAdapterChecker("s3", checkFunc(func(context.Context) error { return nil }), 0))
	registry.Register(health.NewAdapterChecker("dynamodb", checkFunc(func(context.Context) error { return indexErr }), 0))
	return NewManagementRouter(ManagementOptions{
		Health:  registry,
		Metrics: metrics.NewRegistry(),
		Version: version.Current("adapter-registry"),
		Logger:  testutil.NewRecordingLogger(),
	})
}

func TestManagement_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newManagementRouter(t, errors.New("down")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("liveness must not depend on checks, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestManagement_Ready(t *testing.T) {
	tests := []struct {
		name     string
		indexErr error
		want     int
	}{
		{name: "ready", want: http.StatusOK},
		{name: "index unavailable", indexErr: errors.New("table not reachable"), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newManagementRouter(t, tt.indexErr).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			var result health.Report
			if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(result.Checks) != 2 {
				t.Fatalf("expected 2 checks, got %+v", result.Checks)
			}
		})
	}
}

func TestManagement_MetricsAndVersion(t *testing.T) {
	h := newManagementRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info version.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || info.Service != "adapter-registry" {
		t.Fatalf("unexpected version response %s (%v)", rec.Body.String(), err)
	}
}

func TestNewManagementServer_MTLSFilesMissing(t *testing.T) {
	_, err := NewManagementServer(config.ManagementConfig{
		Port:        9191,
		MTLSEnabled: true,
		TLSCertFile: "/missing/server.crt",
		TLSKeyFile:  "/missing/server.key",
		TLSCAFile:   "/missing/ca.crt",
	}, ManagementOptions{
		Health:  health.NewRegistry(),
		Metrics: metrics.NewRegistry(),
		Logger:  testutil.NewRecordingLogger(),
	})
	if err == nil {
		t.Fatal("expected error for missing mTLS files")
	}
}

package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimburion/adapter-registry/pkg/testutil"
)

func TestLogging(t *testing.T) {
	log := testutil.NewRecordingLogger()
	handler := WithConfig(log, Config{Enabled: true, ExcludedPathPrefixes: []string{"/health"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/fail" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/adapter-types", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Msg != "request completed" || entries[0].Fields["status"] != http.StatusCreated {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != "error" || entries[1].Fields["path"] != "/fail" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/controller"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/registry"
)

// Registry is the set of registry operations exposed over HTTP.
type Registry interface {
	ListAll(ctx context.Context, table string) ([]adaptertype.Descriptor, error)
	FetchFile(ctx context.Context, bucket string, req *registry.FetchFileRequest) (*registry.FetchFileResult, error)
	Upload(ctx context.Context, bucket string, req *registry.UploadRequest) (*registry.UploadResult, error)
	Ingest(ctx context.Context, table, bucket, key string) (*registry.IngestResult, error)
	Reindex(ctx context.Context, table, bucket, prefix string) (*registry.ReindexReport, error)
	Delete(ctx context.Context, table, name string) error
	Purge(ctx context.Context, table string) ([]adaptertype.Key, error)
}

// API binds registry operations to the configured table and bucket.
type API struct {
	registry Registry
	table    string
	bucket   string
	logger   logger.Logger
}

// NewAPI creates the HTTP handlers for the registry operations.
func NewAPI(reg Registry, table, bucket string, log logger.Logger) *API {
	return &API{
		registry: reg,
		table:    table,
		bucket:   bucket,
		logger:   log,
	}
}

// ListResponse is the body of GET /adapter-types.
type ListResponse struct {
	AdapterTypes []adaptertype.Descriptor `json:"adapterTypes"`
}

// PurgeResponse is the body of DELETE /adapter-types.
type PurgeResponse struct {
	Deleted []adaptertype.Key `json:"deleted"`
}

// ReindexRequest is the optional body of POST /adapter-types/reindex.
type ReindexRequest struct {
	Prefix string `json:"prefix"`
}

// Register mounts the registry routes on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/adapter-types", a.list).Methods(http.MethodGet)
	r.HandleFunc("/adapter-types", a.upload).Methods(http.MethodPost)
	r.HandleFunc("/adapter-types", a.purge).Methods(http.MethodDelete)
	r.HandleFunc("/adapter-types/file", a.fetchFile).Methods(http.MethodPost)
	r.HandleFunc("/adapter-types/ingest", a.ingest).Methods(http.MethodPost)
	r.HandleFunc("/adapter-types/reindex", a.reindex).Methods(http.MethodPost)
	r.HandleFunc("/adapter-types/{name}", a.delete).Methods(http.MethodDelete)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	adapterTypes, err := a.registry.ListAll(r.Context(), a.table)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ListResponse{AdapterTypes: adapterTypes})
}

func (a *API) fetchFile(w http.ResponseWriter, r *http.Request) {
	var req *registry.FetchFileRequest
	if err := decodeOptional(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.registry.FetchFile(r.Context(), a.bucket, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, res)
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	var req *registry.UploadRequest
	if err := decodeOptional(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.registry.Upload(r.Context(), a.bucket, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, res)
}

func (a *API) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := controller.ReadBody(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	trigger, err := registry.ParseTrigger(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.registry.Ingest(r.Context(), a.table, trigger.Bucket, trigger.Key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, res)
}

func (a *API) reindex(w http.ResponseWriter, r *http.Request) {
	var req *ReindexRequest
	if err := decodeOptional(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	prefix := ""
	if req != nil {
		prefix = req.Prefix
	}
	report, err := a.registry.Reindex(r.Context(), a.table, a.bucket, prefix)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, report)
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Delete(r.Context(), a.table, mux.Vars(r)["name"]); err != nil {
		a.fail(w, r, err)
		return
	}
	controller.NoContent(w)
}

func (a *API) purge(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.registry.Purge(r.Context(), a.table)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []adaptertype.Key{}
	}
	a.respond(w, r, http.StatusOK, PurgeResponse{Deleted: deleted})
}

// decodeOptional decodes the JSON body into *dst, leaving it nil when the
// body is empty so the operation can report the missing body itself.
func decodeOptional[T any](r *http.Request, dst **T) error {
	var v T
	if err := controller.DecodeJSON(r, &v); err != nil {
		if errors.Is(err, controller.ErrEmptyBody) {
			return nil
		}
		return err
	}
	*dst = &v
	return nil
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := controller.JSON(w, status, v); err != nil {
		a.logger.WithContext(r.Context()).Warn("failed to write response", "error", err)
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if writeErr := controller.Error(w, r, err); writeErr != nil {
		a.logger.WithContext(r.Context()).Warn("failed to write error response", "error", writeErr)
	}
}

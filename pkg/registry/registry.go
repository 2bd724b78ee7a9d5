// Package registry implements the adapter type registry operations: ingestion
// of uploaded descriptors into the index, listing, deletion, upload and file
// retrieval.
package registry

import (
	"context"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/store"
)

// ObjectStore is the descriptor file storage used by the registry.
type ObjectStore interface {
	ListKeys(ctx context.Context, bucket, prefix string) store.Result[[]string]
	GetObject(ctx context.Context, bucket, key string) store.Result[*string]
	PutObject(ctx context.Context, bucket, key string, body []byte) store.Result[bool]
}

// Index is the one-entry-per-name adapter type index.
type Index interface {
	List(ctx context.Context, table string) store.Result[[]adaptertype.Descriptor]
	QueryByName(ctx context.Context, table, name string) store.Result[*adaptertype.Descriptor]
	UpsertIfUnchanged(ctx context.Context, table string, d adaptertype.Descriptor, expectedVersion *string) store.Result[bool]
	DeleteByName(ctx context.Context, table, name string) store.Result[bool]
	DeleteAll(ctx context.Context, table string) store.Result[[]adaptertype.Key]
}

// Service runs registry operations against an object store and an index.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	objects ObjectStore
	index   Index
	logger  logger.Logger
}

// NewService creates a registry service.
func NewService(objects ObjectStore, index Index, log logger.Logger) *Service {
	return &Service{
		objects: objects,
		index:   index,
		logger:  log.With("component", "registry"),
	}
}

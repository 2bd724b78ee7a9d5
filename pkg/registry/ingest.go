package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/store"
	"github.com/nimburion/adapter-registry/pkg/version"
)

// maxIngestAttempts bounds the re-read and re-decide cycles after a
// conditional write loses to a concurrent change.
const maxIngestAttempts = 3

// ErrInvalidDescriptor is the cause of an ingestion that read a stored file
// which is not a valid descriptor. Retrying such an ingestion cannot succeed.
var ErrInvalidDescriptor = errors.New("stored adapter type file is invalid")

// Outcome is the decision taken by an ingestion.
type Outcome string

// Ingestion outcomes.
const (
	OutcomeUpserted Outcome = "upserted"
	OutcomeSkipped  Outcome = "skipped"
)

// IngestResult describes a completed ingestion.
type IngestResult struct {
	// Key is the object key the descriptor was read from.
	Key     string  `json:"adapter"`
	Name    string  `json:"name"`
	Version string  `json:"version"`
	Outcome Outcome `json:"outcome"`
	// PreviousVersion is the indexed version seen before the decision, empty when there was none.
	PreviousVersion string `json:"previousVersion,omitempty"`
}

// Ingest synchronizes the index with the descriptor stored at key: the entry
// for its name is written when absent or older, and left untouched otherwise.
func (s *Service) Ingest(ctx context.Context, table, bucket, key string) (*IngestResult, error) {
	ctx, span := tracing.StartRegistrySpan(ctx, tracing.SpanOperationIngest,
		attribute.String("adapter.key", key))
	res, err := s.ingest(ctx, table, bucket, key)
	if res != nil {
		span.SetAttributes(
			attribute.String("adapter.name", res.Name),
			attribute.String("adapter.version", res.Version),
			attribute.String("registry.outcome", string(res.Outcome)),
		)
		metrics.RecordIngest(string(res.Outcome))
	} else {
		metrics.RecordIngest(metrics.OutcomeFailed)
	}
	tracing.End(span, err)
	return res, err
}

func (s *Service) ingest(ctx context.Context, table, bucket, key string) (*IngestResult, error) {
	log := s.logger.WithContext(ctx).With("key", key)

	if table == "" {
		log.Error("index table is not configured")
		return nil, Internal("Adapter Types table is not configured.", nil)
	}
	if bucket == "" {
		log.Error("adapter types bucket is not configured")
		return nil, Internal("Adapter Types bucket is not configured.", nil)
	}

	obj := s.objects.GetObject(ctx, bucket, key)
	if obj.Err != nil {
		log.Error("adapter type file could not be read", "bucket", bucket, "error", obj.Err)
		return nil, Internal(fmt.Sprintf("Error reading '%s' adapter type file from storage.", key), obj.Err)
	}

	var raw []byte
	if obj.Data != nil {
		raw = []byte(*obj.Data)
	}
	incoming := adaptertype.Parse(key, raw, log)
	if incoming == nil {
		return nil, Internal("Adapter Type file is invalid.", ErrInvalidDescriptor)
	}
	log = log.With("name", incoming.Name, "version", incoming.Version)
	if !version.Valid(incoming.Version) {
		log.Error("adapter type version is not a dotted number")
		return nil, Internal("Adapter Type version is invalid.", version.ErrInvalidVersion)
	}

	for attempt := 1; attempt <= maxIngestAttempts; attempt++ {
		current := s.index.QueryByName(ctx, table, incoming.Name)
		if current.Err != nil {
			log.Error("index entry could not be read", "error", current.Err)
			return nil, Internal("Adapter Type could not be read from the index.", current.Err)
		}

		result := &IngestResult{
			Key:     key,
			Name:    incoming.Name,
			Version: incoming.Version,
		}
		var expected *string
		if current.Data != nil {
			existing := current.Data.Version
			result.PreviousVersion = existing
			expected = &existing

			newer, err := version.IsNewer(incoming.Version, existing)
			if err != nil {
				log.Error("versions are not comparable", "indexed_version", existing, "error", err)
				return nil, Internal("Adapter Type version is invalid.", err)
			}
			if !newer {
				log.Info("adapter type is not newer than the indexed entry, skipping", "indexed_version", existing)
				result.Outcome = OutcomeSkipped
				return result, nil
			}
		}

		saved := s.index.UpsertIfUnchanged(ctx, table, *incoming, expected)
		if saved.Err == nil && saved.Data {
			log.Info("adapter type indexed", "previous_version", result.PreviousVersion)
			result.Outcome = OutcomeUpserted
			return result, nil
		}
		if errors.Is(saved.Err, store.ErrVersionConflict) {
			metrics.RecordIngestConflict()
			log.Warn("index entry changed during ingestion, re-evaluating", "attempt", attempt)
			continue
		}

		log.Error("adapter type could not be saved", "error", saved.Err)
		return nil, Internal("Adapter Type could not be saved.", saved.Err)
	}

	log.Error("adapter type could not be saved, index kept changing", "attempts", maxIngestAttempts)
	return nil, Internal("Adapter Type could not be saved.", store.ErrVersionConflict)
}

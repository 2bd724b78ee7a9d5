package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
)

// ListAll returns every indexed adapter type sorted by case-insensitive name.
func (s *Service) ListAll(ctx context.Context, table string) ([]adaptertype.Descriptor, error) {
	log := s.logger.WithContext(ctx)
	if table == "" {
		log.Error("index table is not configured")
		return nil, Internal("Adapter Types table is not configured.", nil)
	}

	res := s.index.List(ctx, table)
	if res.Err != nil {
		log.Error("adapter list could not be retrieved", "table", table, "error", res.Err)
		return nil, Internal("Adapter list could not be retrieved", res.Err)
	}
	if res.Data == nil {
		log.Error("adapter list is missing", "table", table)
		return nil, Internal("Adapter list could not be retrieved", nil)
	}

	adapterTypes := res.Data
	sort.SliceStable(adapterTypes, func(i, j int) bool {
		return strings.ToLower(adapterTypes[i].Name) < strings.ToLower(adapterTypes[j].Name)
	})
	return adapterTypes, nil
}

// Purge removes every index entry and returns the deleted keys. Descriptor
// files in the object store are kept.
func (s *Service) Purge(ctx context.Context, table string) ([]adaptertype.Key, error) {
	log := s.logger.WithContext(ctx)
	if table == "" {
		log.Error("index table is not configured")
		return nil, Internal("Adapter Types table is not configured.", nil)
	}

	res := s.index.DeleteAll(ctx, table)
	metrics.RecordIndexDeleted(len(res.Data))
	if res.Err != nil {
		log.Error("adapter types could not be deleted", "table", table, "deleted", len(res.Data), "error", res.Err)
		return nil, Internal("Adapter Types could not be deleted.", res.Err)
	}
	log.Info("adapter type index purged", "table", table, "deleted", len(res.Data))
	return res.Data, nil
}

// Delete removes the index entry for name. Deleting an unknown name succeeds.
func (s *Service) Delete(ctx context.Context, table, name string) error {
	log := s.logger.WithContext(ctx)
	if strings.TrimSpace(name) == "" {
		return BadRequest("Bad Request. Adapter Type name is missing.")
	}
	if table == "" {
		log.Error("index table is not configured")
		return Internal("Adapter Types table is not configured.", nil)
	}

	res := s.index.DeleteByName(ctx, table, name)
	if res.Err != nil {
		log.Error("adapter type could not be deleted", "table", table, "name", name, "error", res.Err)
		return Internal("Adapter Type could not be deleted.", res.Err)
	}
	metrics.RecordIndexDeleted(1)
	log.Info("adapter type removed from index", "name", name)
	return nil
}

// ReindexFailure is a descriptor that could not be ingested during a reindex.
type ReindexFailure struct {
	Key     string `json:"key"`
	Code    Kind   `json:"code"`
	Message string `json:"publicMessage"`
}

// ReindexReport summarizes a reindex run.
type ReindexReport struct {
	Scanned  int              `json:"scanned"`
	Upserted []string         `json:"upserted"`
	Skipped  []string         `json:"skipped"`
	Failed   []ReindexFailure `json:"failed"`
}

// Reindex ingests every descriptor file found under prefix (adaptertype.KeyPrefix
// when empty). Keys are processed in listing order; one failing file does not
// stop the run.
func (s *Service) Reindex(ctx context.Context, table, bucket, prefix string) (*ReindexReport, error) {
	log := s.logger.WithContext(ctx)
	if prefix == "" {
		prefix = adaptertype.KeyPrefix
	}
	if bucket == "" {
		log.Error("adapter types bucket is not configured")
		return nil, Internal("Adapter Types bucket is not configured.", nil)
	}

	keys := s.objects.ListKeys(ctx, bucket, prefix)
	if keys.Err != nil {
		log.Error("adapter type files could not be listed", "bucket", bucket, "prefix", prefix, "error", keys.Err)
		return nil, Internal("Adapter Type files could not be listed.", keys.Err)
	}

	report := &ReindexReport{
		Upserted: []string{},
		Skipped:  []string{},
		Failed:   []ReindexFailure{},
	}
	for _, key := range keys.Data {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, Internal("Reindex was interrupted.", err)
		}
		report.Scanned++

		res, err := s.Ingest(ctx, table, bucket, key)
		if err != nil {
			report.Failed = append(report.Failed, ReindexFailure{
				Key:     key,
				Code:    KindOf(err),
				Message: PublicMessage(err),
			})
			continue
		}
		if res.Outcome == OutcomeUpserted {
			report.Upserted = append(report.Upserted, key)
		} else {
			report.Skipped = append(report.Skipped, key)
		}
	}

	log.Info("reindex completed",
		"scanned", report.Scanned,
		"upserted", len(report.Upserted),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

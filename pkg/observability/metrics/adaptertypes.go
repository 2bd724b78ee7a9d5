package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ingestTotal counts synchronization runs by outcome.
	// Labels: outcome (upserted, skipped, failed)
	ingestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_registry_ingest_total",
			Help: "Adapter type ingestions by outcome",
		},
		[]string{"outcome"},
	)

	// ingestConflicts counts conditional writes rejected because the index changed concurrently.
	ingestConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adapter_registry_ingest_conflicts_total",
			Help: "Conditional index writes rejected by a concurrent change",
		},
	)

	// uploadsTotal counts upload requests by result.
	// Labels: result (uploaded, rejected, failed)
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_registry_uploads_total",
			Help: "Adapter type uploads by result",
		},
		[]string{"result"},
	)

	// workerMessagesTotal counts queue messages handled by the notification worker.
	// Labels: result (ingested, discarded, retried)
	workerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_registry_worker_messages_total",
			Help: "Notification queue messages by result",
		},
		[]string{"result"},
	)

	// indexDeletedTotal counts index entries removed by delete and purge.
	indexDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adapter_registry_index_deleted_total",
			Help: "Index entries deleted",
		},
	)
)

// Ingest outcome and upload result label values.
const (
	OutcomeUpserted = "upserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"

	UploadUploaded = "uploaded"
	UploadRejected = "rejected"
	UploadFailed   = "failed"

	MessageIngested  = "ingested"
	MessageDiscarded = "discarded"
	MessageRetried   = "retried"
)

// RecordIngest counts one ingestion with the given outcome.
func RecordIngest(outcome string) {
	ingestTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestConflict counts one rejected conditional write.
func RecordIngestConflict() {
	ingestConflicts.Inc()
}

// RecordUpload counts one upload with the given result.
func RecordUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

// RecordIndexDeleted adds n deleted index entries.
func RecordIndexDeleted(n int) {
	if n > 0 {
		indexDeletedTotal.Add(float64(n))
	}
}

// RecordWorkerMessage counts one queue message with the given result.
func RecordWorkerMessage(result string) {
	workerMessagesTotal.WithLabelValues(result).Inc()
}

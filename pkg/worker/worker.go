// Package worker ingests adapter type uploads announced on a notification queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nimburion/adapter-registry/pkg/eventbus"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/registry"
	"github.com/nimburion/adapter-registry/pkg/resilience"
	"github.com/nimburion/adapter-registry/pkg/version"
)

// Ingester runs the index synchronization for one stored object.
type Ingester interface {
	Ingest(ctx context.Context, table, bucket, key string) (*registry.IngestResult, error)
}

// Worker turns queue messages carrying S3 notifications into ingestions.
type Worker struct {
	consumer eventbus.Consumer
	ingester Ingester
	table    string
	logger   logger.Logger
	breaker  *resilience.CircuitBreaker
	queue    string
}

// New creates a worker that ingests into table. Ingestion stops for 30s
// after 5 consecutive storage failures; the affected messages are left on
// the queue and redelivered.
func New(consumer eventbus.Consumer, ingester Ingester, table string, log logger.Logger) *Worker {
	w := &Worker{
		consumer: consumer,
		ingester: ingester,
		table:    table,
		logger:   log.With("component", "worker"),
	}
	w.breaker = resilience.NewCircuitBreaker(resilience.Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		IsFailure: func(err error) bool {
			return !permanent(err) && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(from, to resilience.State) {
			w.logger.Warn("ingestion circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return w
}

// WithBreaker replaces the circuit breaker guarding ingestion.
func (w *Worker) WithBreaker(cb *resilience.CircuitBreaker) *Worker {
	w.breaker = cb
	return w
}

// WithQueue names the queue in the traces of handled messages.
func (w *Worker) WithQueue(queue string) *Worker {
	w.queue = queue
	return w
}

// Run consumes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.Handle)
}

// Handle ingests the object named by one message. Messages that can never
// succeed are acknowledged and dropped: malformed events, S3 test events and
// invalid descriptors. Other failures return an error so the message is
// redelivered.
func (w *Worker) Handle(ctx context.Context, msg *eventbus.Message) (err error) {
	ctx, span := tracing.StartMessagingSpan(ctx, "sqs", w.queue, msg.ID)
	defer func() { tracing.End(span, err) }()

	ctx = logger.ContextWithRequestID(ctx, msg.ID)
	log := w.logger.WithContext(ctx)

	trigger, err := registry.ParseTrigger(unwrapSNS(msg.Value))
	if err != nil {
		if errors.Is(err, registry.ErrTestEvent) {
			log.Info("s3 test event discarded")
		} else {
			log.Warn("invalid notification discarded", "error", err)
		}
		metrics.RecordWorkerMessage(metrics.MessageDiscarded)
		return nil
	}

	var res *registry.IngestResult
	err = w.breaker.Execute(ctx, func(ctx context.Context) error {
		var ingestErr error
		res, ingestErr = w.ingester.Ingest(ctx, w.table, trigger.Bucket, trigger.Key)
		return ingestErr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			log.Warn("storage unavailable, notification deferred", "key", trigger.Key)
			metrics.RecordWorkerMessage(metrics.MessageRetried)
			return err
		}
		if permanent(err) {
			log.Warn("adapter type rejected, notification discarded", "key", trigger.Key, "error", err)
			metrics.RecordWorkerMessage(metrics.MessageDiscarded)
			return nil
		}
		metrics.RecordWorkerMessage(metrics.MessageRetried)
		return err
	}

	log.Info("adapter type ingested",
		"key", res.Key,
		"name", res.Name,
		"version", res.Version,
		"outcome", res.Outcome,
		"receive_count", msg.ReceiveCount,
	)
	metrics.RecordWorkerMessage(metrics.MessageIngested)
	return nil
}

// permanent reports whether redelivering the message cannot change the result.
func permanent(err error) bool {
	return registry.KindOf(err) == registry.KindBadRequest ||
		errors.Is(err, registry.ErrInvalidDescriptor) ||
		errors.Is(err, version.ErrInvalidVersion)
}

// snsEnvelope is the wrapper SNS adds when S3 notifications are fanned out
// through a topic before reaching the queue.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func unwrapSNS(body []byte) []byte {
	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if envelope.Type == "Notification" && envelope.Message != "" {
		return []byte(envelope.Message)
	}
	return body
}

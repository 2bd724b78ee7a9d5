package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operations emitted by the registry.
const (
	SpanOperationObjectList SpanOperation = "object.list"
	SpanOperationObjectGet  SpanOperation = "object.get"
	SpanOperationObjectPut  SpanOperation = "object.put"

	SpanOperationIndexScan        SpanOperation = "index.scan"
	SpanOperationIndexQuery       SpanOperation = "index.query"
	SpanOperationIndexPut         SpanOperation = "index.put"
	SpanOperationIndexDelete      SpanOperation = "index.delete"
	SpanOperationIndexBatchDelete SpanOperation = "index.batch_delete"

	SpanOperationMsgProcess SpanOperation = "messaging.process"

	SpanOperationIngest SpanOperation = "registry.ingest"
	SpanOperationUpload SpanOperation = "registry.upload"
)

// StartStoreSpan creates a client span for an object store or index call.
// system is the backing service ("s3", "dynamodb"); target is the bucket or table.
func StartStoreSpan(ctx context.Context, system string, operation SpanOperation, target string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("store")

	spanName := fmt.Sprintf("%s %s", system, operation)
	if target != "" {
		spanName = fmt.Sprintf("%s %s %s", system, operation, target)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("store.system", system),
		attribute.String("store.operation", string(operation)),
		attribute.String("store.target", target),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// StartMessagingSpan creates a consumer span for a received queue message.
func StartMessagingSpan(ctx context.Context, system, destination, messageID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("messaging")

	ctx, span := tracer.Start(ctx, fmt.Sprintf("MSG %s %s", SpanOperationMsgProcess, system), trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("messaging.system", system),
		attribute.String("messaging.destination", destination),
		attribute.String("messaging.message_id", messageID),
	)
	return ctx, span
}

// StartRegistrySpan creates an internal span for a registry flow.
func StartRegistrySpan(ctx context.Context, operation SpanOperation, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("registry").Start(ctx, string(operation), trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attrs...)
	return ctx, span
}

// End records err (if any) on the span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

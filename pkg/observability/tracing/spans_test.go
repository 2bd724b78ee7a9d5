package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestStartStoreSpan_NameAndStatus(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartStoreSpan(context.Background(), "dynamodb", SpanOperationIndexScan, "adapter-types")
	End(span, nil)

	_, failed := StartStoreSpan(context.Background(), "s3", SpanOperationObjectGet, "")
	End(failed, errors.New("boom"))

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "dynamodb index.scan adapter-types" {
		t.Fatalf("unexpected span name %q", ended[0].Name())
	}
	if ended[0].Status().Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", ended[0].Status())
	}
	if ended[1].Name() != "s3 object.get" {
		t.Fatalf("unexpected span name %q", ended[1].Name())
	}
	if ended[1].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", ended[1].Status())
	}
}

func TestStartMessagingSpan_Attributes(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartMessagingSpan(context.Background(), "sqs", "queue-url", "msg-1")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	found := false
	for _, attr := range ended[0].Attributes() {
		if string(attr.Key) == "messaging.message_id" && attr.Value.AsString() == "msg-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected message id attribute")
	}
}

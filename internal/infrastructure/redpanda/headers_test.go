package redpanda

import (
	"context"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrierRoundTripsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	record := &kgo.Record{Topic: TopicEvents, Headers: []kgo.RecordHeader{{Key: "source", Value: []byte("H100")}}}
	prop.Inject(ctx, headerCarrier{record: record})

	carrier := headerCarrier{record: record}
	if got := carrier.Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("unexpected traceparent %q", got)
	}
	if len(carrier.Keys()) != 2 {
		t.Errorf("expected existing header kept, got keys %v", carrier.Keys())
	}

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	if extracted.TraceID() != traceID || extracted.SpanID() != spanID {
		t.Errorf("trace context not recovered: %v", extracted)
	}

	carrier.Set("source", "H103")
	if carrier.Get("source") != "H103" || len(record.Headers) != 2 {
		t.Errorf("set must overwrite in place: %+v", record.Headers)
	}
}

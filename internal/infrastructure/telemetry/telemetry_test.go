package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func remoteContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatal(err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatal(err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestKafkaHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	ctx, sc := remoteContext(t)

	headers := []kafka.Header{{Key: "Traceparent", Value: []byte("stale")}, {Key: "app", Value: []byte("x")}}
	InjectKafkaHeaders(ctx, &headers)
	if len(headers) != 2 {
		t.Fatalf("existing header should be replaced, got %d headers", len(headers))
	}

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	if extracted.TraceID() != sc.TraceID() || extracted.SpanID() != sc.SpanID() {
		t.Fatalf("unexpected span context %v", extracted)
	}
	if !extracted.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}

func TestTraceID(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("expected empty trace id, got %q", got)
	}
	ctx, _ := remoteContext(t)
	if got := TraceID(ctx); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace id %q", got)
	}
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("no-op provider should not produce valid spans")
	}
	span.End()
}

func TestExporterOptions(t *testing.T) {
	if got := len(exporterOptions("collector:4318")); got != 3 {
		t.Errorf("host:port should add endpoint and insecure, got %d options", got)
	}
	if got := len(exporterOptions("https://collector/v1/traces")); got != 2 {
		t.Errorf("url should add endpoint url only, got %d options", got)
	}
	if serviceName("") != "bcexplorer" {
		t.Error("default service name")
	}
}

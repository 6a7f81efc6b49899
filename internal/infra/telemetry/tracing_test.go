package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap/zaptest"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/config"
)

func TestTracerProviderExportsSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tp, err := newTracerProvider(ctx, exporter, config.TelemetrySettings{SamplingRate: 1}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newTracerProvider returned error: %v", err)
	}
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("tokens-test").Start(ctx, "validate")
	span.End()

	if err := tp.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush returned error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "validate" {
		t.Fatalf("expected one exported span, got %+v", spans)
	}

	found := false
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == semconv.ServiceNameKey && attr.Value.AsString() == "token-service" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected default service name on the resource")
	}
}

func TestTracerProviderHonoursZeroSampling(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tp, err := newTracerProvider(ctx, exporter, config.TelemetrySettings{ServiceName: "tokens", SamplingRate: 0}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newTracerProvider returned error: %v", err)
	}
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("tokens-test").Start(ctx, "dropped")
	span.End()
	_ = tp.ForceFlush(ctx)

	if spans := exporter.GetSpans(); len(spans) != 0 {
		t.Fatalf("expected no sampled spans, got %d", len(spans))
	}
}

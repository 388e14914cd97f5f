package obstrace

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceToolExecutionRecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, shutdown := New(exporter, Config{ServiceName: "agentcore-test"})
	defer shutdown(context.Background())

	_, span := tracer.TraceToolExecution(context.Background(), "echo")
	span.End()

	if err := tracer.provider.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "tool.echo" {
		t.Fatalf("expected span name tool.echo, got %s", spans[0].Name)
	}
}

func TestWithSpanRecordsError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, shutdown := New(exporter, Config{})
	defer shutdown(context.Background())

	wantErr := errors.New("boom")
	err := tracer.WithSpan(context.Background(), "op", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error to propagate, got %v", err)
	}

	if err := tracer.provider.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Description != "boom" {
		t.Fatalf("expected recorded error status, got %+v", spans)
	}
}

func TestNewWithNilExporterDoesNotPanic(t *testing.T) {
	tracer, shutdown := New(nil, Config{ServiceName: "agentcore-test"})
	defer shutdown(context.Background())

	_, span := tracer.TraceLoopIteration(context.Background(), "s1", 1)
	span.End()
}

// Package obstrace wraps OpenTelemetry tracing around loop iterations,
// tool executions, and fork waits, following the span-helper layout of the
// teacher's internal/observability tracing wrapper but scoped to the
// agent-core domain and exporter-agnostic: callers supply whatever
// sdktrace.SpanExporter fits their deployment (OTLP, stdout, in-memory for
// tests) instead of this package owning a collector endpoint.
package obstrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config names the service for the resource attributes attached to every
// span.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Tracer is the runtime's tracing surface: one span per loop iteration,
// tool execution, or fork wait.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer that exports spans via exporter. Pass nil to get a
// tracer that creates spans but never exports them, useful when tracing is
// configured off.
func New(exporter sdktrace.SpanExporter, cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentcore"
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		res = resource.Default()
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)},
		provider.Shutdown
}

// Start opens a span named name and returns the derived context.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(kind)}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed and attaches err.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceLoopIteration spans one pass of the agent loop for session sessionID
// at stepNumber.
func (t *Tracer) TraceLoopIteration(ctx context.Context, sessionID string, stepNumber int) (context.Context, trace.Span) {
	return t.Start(ctx, "loop.iteration", trace.SpanKindInternal,
		attribute.String("session_id", sessionID),
		attribute.Int("step_number", stepNumber),
	)
}

// TraceToolExecution spans one tool invocation.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.SpanKindInternal,
		attribute.String("tool.name", toolName),
	)
}

// TraceLLMCall spans one model call.
func (t *Tracer) TraceLLMCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("llm.%s", provider), trace.SpanKindClient,
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
}

// TraceForkWait spans a parent step waiting on a fork task at depth.
func (t *Tracer) TraceForkWait(ctx context.Context, forkTaskID string, depth int) (context.Context, trace.Span) {
	return t.Start(ctx, "fork.wait", trace.SpanKindInternal,
		attribute.String("fork.task_id", forkTaskID),
		attribute.Int("fork.depth", depth),
	)
}

// WithSpan runs fn inside a span named name, recording any returned error.
func (t *Tracer) WithSpan(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := t.Start(ctx, name, trace.SpanKindInternal)
	defer span.End()
	err := fn(ctx)
	t.RecordError(span, err)
	return err
}

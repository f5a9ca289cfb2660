package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider scoped to this service. No
// exporter is wired here — the caller attaches one (otlp, stdout, or none
// for pure in-process span propagation in tests) via TraceConfig.SpanProcessor
// before spans are useful outside the process.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures a Tracer.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	// SpanProcessor is optional; when nil, spans are created and ended
	// normally but never exported anywhere (useful for tests and for
	// running with tracing instrumented but no collector configured).
	SpanProcessor sdktrace.SpanProcessor
}

// NewTracer builds a Tracer and registers its provider as the global
// OpenTelemetry TracerProvider. The returned shutdown func must be called on exit to flush any
// configured span processor.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanProcessor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(cfg.SpanProcessor))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// Start begins a span named name, returning the derived context and span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed and attaches err, a pattern used around
// every provider call and tool execution so failures show up in traces
// without every call site re-deriving the status code.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package main

import (
	"context"
	"os"

	"github.com/oskarlindberg/agentcore/internal/observability"
)

// buildLogger constructs the process-wide Logger. Output is always stderr:
// chat mode reserves stdout for the conversation itself, and serve mode has
// no other stream to share it with.
func buildLogger(cfg LoggingConfig) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:          cfg.Level,
		Format:         cfg.Format,
		Output:         os.Stderr,
		AddSource:      cfg.AddSource,
		RedactPatterns: cfg.RedactPatterns,
	})
}

// buildTracer constructs a Tracer when tracing is enabled in config. No
// exporter is attached — spans propagate in-process and are ended
// correctly, but nothing ships them anywhere until a deployment supplies an
// sdktrace.SpanProcessor of its own choosing (otlp, stdout...). The
// returned shutdown func is nil when tracing is disabled; callers must
// check before deferring it.
func buildTracer(cfg TracingConfig) (*observability.Tracer, func(context.Context) error) {
	if !cfg.Enabled {
		return nil, nil
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentcore"
	}
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
	})
}

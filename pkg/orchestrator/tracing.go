package orchestrator

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span this package
// emits; each phase gets its own span plus one covering the whole run.
const tracerName = "homeiq-insight/orchestrator"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startPhaseSpan opens a child span for one orchestrator phase, tagged
// with the run id so a trace backend can group every phase of one daily
// job together.
func startPhaseSpan(ctx context.Context, runID, phase string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "phase."+phase, trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("phase", phase),
	))
}

// InitTracing installs the process-wide tracer provider the spans above
// are exported through, backed by the stdout trace exporter. Returns a
// shutdown hook that flushes buffered spans; callers defer it for the
// process lifetime. When disabled, nothing is installed and every span
// above is a no-op against the default provider.
func InitTracing(serviceName string, enabled bool, w io.Writer) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Package tracing wraps each node's open/transform/close in an OpenTelemetry
// span. A no-op tracer provider is the default so tests and unconfigured
// runs exercise the instrumentation without requiring a collector.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/speechflow/speechflow"

// Tracer wraps an otel.Tracer with the node-span helpers this runtime needs.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer against the globally configured otel TracerProvider.
// Call Configure first to install a real exporter; otherwise this resolves
// to the no-op provider.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// Configure installs tp as the global TracerProvider. Passing nil installs
// an explicit no-op provider (the same effective behavior as never calling
// Configure, but useful for tests that want to assert no spans are recorded).
func Configure(tp trace.TracerProvider) {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	otel.SetTracerProvider(tp)
}

// StartNodeSpan starts a span named "<nodeID>.<op>" tagged with the node id
// and operation, for wrapping open/transform/close.
func (t *Tracer) StartNodeSpan(ctx context.Context, nodeID, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, nodeID+"."+op,
		trace.WithAttributes(
			attribute.String("speechflow.node_id", nodeID),
			attribute.String("speechflow.op", op),
		))
}

// EndWithError records err on span (if non-nil) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

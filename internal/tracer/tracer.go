// Package tracer provides distributed tracing abstractions for queryscope.
// It supports OpenTelemetry and allows custom tracer implementations.
package tracer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer defines the tracing interface for the analysis engine.
// Implementations can provide OpenTelemetry, Jaeger, or custom tracing.
type Tracer interface {
	// StartSpan starts a new tracing span with the given name
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span that captures the execution of an operation.
type Span interface {
	// SetAttributes sets key-value attributes on the span
	SetAttributes(attrs ...attribute.KeyValue)
	// RecordError records an error that occurred during the span
	RecordError(err error)
	// SetStatus sets the status code and description of the span
	SetStatus(code codes.Code, description string)
	// End marks the span as complete
	End()
}

// NoopTracer is a tracer that does nothing (zero overhead when tracing is
// disabled). This is the default tracer used when no tracing is configured.
type NoopTracer struct{}

// StartSpan returns the context unchanged with a no-op span.
func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan is a span that does nothing.
type NoopSpan struct{}

// SetAttributes does nothing.
func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}

// RecordError does nothing.
func (n *NoopSpan) RecordError(_ error) {}

// SetStatus does nothing.
func (n *NoopSpan) SetStatus(_ codes.Code, _ string) {}

// End does nothing.
func (n *NoopSpan) End() {}

// OtelTracer wraps an OpenTelemetry tracer to implement the Tracer interface.
// This allows seamless integration with OpenTelemetry-based observability systems.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a new OpenTelemetry tracer adapter.
// The provided tracer must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// StartSpan starts a new OpenTelemetry span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &OtelSpan{span: span}
}

// OtelSpan wraps an OpenTelemetry span.
type OtelSpan struct {
	span trace.Span
}

// SetAttributes sets OpenTelemetry attributes on the span.
func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// RecordError records an error on the OpenTelemetry span.
func (s *OtelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// SetStatus sets the status of the OpenTelemetry span.
func (s *OtelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End completes the OpenTelemetry span.
func (s *OtelSpan) End() {
	s.span.End()
}

// ObservationMetadata describes one recorded query execution for tracing.
// Attribute names follow OpenTelemetry database semantic conventions.
// See: https://opentelemetry.io/docs/specs/semconv/database/
type ObservationMetadata struct {
	// Statement is the query text, already sanitized and truncated by the
	// caller. Full raw text must never reach span attributes.
	Statement string
	// Fingerprint is the query's shape identifier.
	Fingerprint string
	// DurationMS is the reported execution time in milliseconds.
	DurationMS float64
	// RowsReturned is the reported result row count.
	RowsReturned int64
}

// AddObservationAttributes adds the observation's attributes to a span.
func AddObservationAttributes(span Span, meta *ObservationMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.statement", meta.Statement),
		attribute.String("db.query.fingerprint", meta.Fingerprint),
	}
	if meta.DurationMS > 0 {
		attrs = append(attrs, attribute.Float64("db.duration_ms", meta.DurationMS))
	}
	if meta.RowsReturned > 0 {
		attrs = append(attrs, attribute.Int64("db.response.returned_rows", meta.RowsReturned))
	}
	span.SetAttributes(attrs...)
}

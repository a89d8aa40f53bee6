package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxbridge/pkg/types"
)

const tracerName = "github.com/MrWong99/voxbridge"

// Tracer returns the voxbridge tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// InferenceSpan wraps the span around one engine call for one segment.
type InferenceSpan struct {
	trace.Span
}

// StartInference starts a span named "pipeline.<stage>" carrying the
// segment, sequence number and event kind of the request.
func StartInference(ctx context.Context, stage string, segmentID, seq uint64, kind types.EventKind) (context.Context, InferenceSpan) {
	ctx, span := StartSpan(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.Int64("segment_id", int64(segmentID)),
		attribute.Int64("seq", int64(seq)),
		attribute.String("kind", string(kind)),
	))
	return ctx, InferenceSpan{Span: span}
}

// Fail records err and marks the span as failed.
func (s InferenceSpan) Fail(err error) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}

// CorrelationID is the trace id of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

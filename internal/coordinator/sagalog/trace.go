package sagalog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars).
	// Empty string if no active span is found in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings.
//
// otelhttp creates the server span for inbound requests and the reconciler
// starts its own, so both paths have a span in ctx. Without one (unit tests)
// both fields are empty.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}

	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Stamp sets the trace identifiers and the wall-clock time of the next row.
//
//	rec.Stamp(ctx)
//	_ = repo.Save(ctx, rec)
func (r *Record) Stamp(ctx context.Context) {
	ti := ExtractTraceInfo(ctx)
	r.TraceID = ti.TraceID
	r.SpanID = ti.SpanID
	r.UpdatedAt = time.Now().UTC()
}

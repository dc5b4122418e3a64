package logger

import (
	"context"
	"log/slog"

	tracectx "github.com/insightrix/insightra/pkg/trace/context"
	"go.opentelemetry.io/otel/trace"
)

// traceHandler injects trace fields into log records.
type traceHandler struct {
	next slog.Handler
}

// newTraceHandler wraps a handler so records carry trace metadata.
func newTraceHandler(next slog.Handler) slog.Handler {
	return &traceHandler{next: next}
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, record slog.Record) error {
	spanCtx := extractSpanContext(ctx)
	if spanCtx.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, record)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

// extractSpanContext pulls an OTel span context from the logging context,
// falling back to the goroutine-local request context.
func extractSpanContext(ctx context.Context) trace.SpanContext {
	if ctx == nil {
		ctx = tracectx.GetContext()
	}
	if ctx == nil {
		return trace.SpanContext{}
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext()
	}

	fallback := tracectx.GetContext()
	if fallback == nil {
		return trace.SpanContext{}
	}
	span = trace.SpanFromContext(fallback)
	return span.SpanContext()
}

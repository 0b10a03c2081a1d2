package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/motto"

// Tracer returns the motto tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

type logAttrsKey struct{}

// WithLogAttrs returns a context whose [Logger] carries args in addition to
// any attributes already attached to ctx. args are key-value pairs as
// accepted by [slog.Logger.With].
func WithLogAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(logAttrsKey{}).([]any)
	attrs := make([]any, 0, len(prev)+len(args))
	attrs = append(append(attrs, prev...), args...)
	return context.WithValue(ctx, logAttrsKey{}, attrs)
}

// Logger returns the default logger enriched with the attributes attached by
// [WithLogAttrs] and, when ctx holds a valid span, its trace_id and span_id.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if attrs, ok := ctx.Value(logAttrsKey{}).([]any); ok {
		l = l.With(attrs...)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

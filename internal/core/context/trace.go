package context

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies the request a log line or a save belongs to.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
// When only an otel span is present, its trace id is reported.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return &TraceContext{TraceID: sc.TraceID().String()}
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// AttrPrefix namespaces every span attribute ruleforge sets.
const AttrPrefix = "ruleforge."

type handleKey struct{}

// Handle wraps tracer and shutdown
type Handle struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// From returns nil when tracing is off.
func From(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}

// StartSpan starts a span named ruleforge.<name>. Without a handle in ctx the
// span is a no-op, so callers never branch on whether tracing is on.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")
	if h := From(ctx); h != nil && h.Tracer != nil {
		tracer = h.Tracer
	}
	return tracer.Start(ctx, AttrPrefix+name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Int and String build attributes under AttrPrefix.
func Int(key string, v int) attribute.KeyValue {
	return attribute.Int(AttrPrefix+key, v)
}

func String(key, v string) attribute.KeyValue {
	return attribute.String(AttrPrefix+key, v)
}

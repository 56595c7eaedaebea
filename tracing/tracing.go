// Package tracing opens one OpenTelemetry span per cache operation. It is
// entirely optional: tracing is only active when a [Config] is wired in via
// fusioncache.WithTracing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Keksclan/goFusionCache"

// Config holds the OpenTelemetry configuration used to trace cache
// operations. A nil *Config disables tracing.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// IncludeKeys adds the cache key as the "cache.key" attribute. Keys may
	// carry identifiers, so this is off by default.
	IncludeKeys bool
}

func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Start opens a span named "fusioncache.<op>" for an operation on cache. With
// a nil Config it returns ctx unchanged and a non-recording span.
func (c *Config) Start(ctx context.Context, op, cache, key string) (context.Context, trace.Span) {
	if c == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", cache),
		attribute.String("cache.operation", op),
	}
	if c.IncludeKeys {
		attrs = append(attrs, attribute.String("cache.key", key))
	}
	return c.tracer().Start(ctx, "fusioncache."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Hit is the attribute recording whether a lookup was served from storage.
func Hit(hit bool) attribute.KeyValue {
	return attribute.Bool("cache.hit", hit)
}

// Tier is the attribute naming the storage tier that served a lookup.
func Tier(tier string) attribute.KeyValue {
	return attribute.String("cache.tier", tier)
}

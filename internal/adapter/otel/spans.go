package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "guildplan-bridge"

// StartDispatchSpan starts a span covering the fan-out of one event.
func StartDispatchSpan(ctx context.Context, subject string, connections int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("bus.subject", subject),
			attribute.Int("bridge.connections", connections),
		),
	)
}

// StartLookupSpan starts a span for a membership provider lookup.
func StartLookupSpan(ctx context.Context, identity string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "membership.lookup",
		trace.WithAttributes(
			attribute.String("bridge.identity", identity),
		),
	)
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "guildplan-bridge"

// Metrics holds all bridge metric instruments. A nil *Metrics is valid
// and records nothing, so tests can pass nil without wiring a meter.
type Metrics struct {
	EventsConsumed     metric.Int64Counter
	EventsMalformed    metric.Int64Counter
	FramesEnqueued     metric.Int64Counter
	FramesDropped      metric.Int64Counter
	AuthzDenied        metric.Int64Counter
	MembershipFailures metric.Int64Counter
	ActiveConnections  metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsConsumed, err = meter.Int64Counter("bridge.events.consumed",
		metric.WithDescription("Events decoded from the bus"))
	if err != nil {
		return nil, err
	}

	m.EventsMalformed, err = meter.Int64Counter("bridge.events.malformed",
		metric.WithDescription("Bus messages dropped as undecodable"))
	if err != nil {
		return nil, err
	}

	m.FramesEnqueued, err = meter.Int64Counter("bridge.frames.enqueued",
		metric.WithDescription("Frames enqueued onto connection queues"))
	if err != nil {
		return nil, err
	}

	m.FramesDropped, err = meter.Int64Counter("bridge.frames.dropped",
		metric.WithDescription("Frames dropped because a connection queue was full"))
	if err != nil {
		return nil, err
	}

	m.AuthzDenied, err = meter.Int64Counter("bridge.authz.denied",
		metric.WithDescription("Per-event authorization denials"))
	if err != nil {
		return nil, err
	}

	m.MembershipFailures, err = meter.Int64Counter("bridge.membership.failures",
		metric.WithDescription("Membership provider lookups that failed or timed out"))
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter("bridge.connections.active",
		metric.WithDescription("Currently open streaming connections"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AddEventConsumed records one decoded event.
func (m *Metrics) AddEventConsumed(ctx context.Context) {
	if m == nil {
		return
	}
	m.EventsConsumed.Add(ctx, 1)
}

// AddEventMalformed records one dropped undecodable message.
func (m *Metrics) AddEventMalformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.EventsMalformed.Add(ctx, 1)
}

// AddFrameEnqueued records one successful enqueue.
func (m *Metrics) AddFrameEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesEnqueued.Add(ctx, 1)
}

// AddFrameDropped records one frame dropped on a full queue.
func (m *Metrics) AddFrameDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesDropped.Add(ctx, 1)
}

// AddAuthzDenied records one authorization denial.
func (m *Metrics) AddAuthzDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.AuthzDenied.Add(ctx, 1)
}

// AddMembershipFailure records one failed provider lookup.
func (m *Metrics) AddMembershipFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.MembershipFailures.Add(ctx, 1)
}

// ConnectionOpened adjusts the active connection gauge up.
func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, 1)
}

// ConnectionClosed adjusts the active connection gauge down.
func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}

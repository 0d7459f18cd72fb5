package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guildplan/bridge/internal/adapter/otel"
	"github.com/guildplan/bridge/internal/domain"
	"github.com/guildplan/bridge/internal/domain/event"
	"github.com/guildplan/bridge/internal/port/messagequeue"
)

// Dispatcher consumes decoded events from the bus subscription and fans
// them out to every authorized connection. Enqueueing is non-blocking:
// a full queue drops the frame for that connection only, so a slow
// client never delays delivery to any other client.
//
// The per-event cost is linear in the number of active connections. That
// is a deliberate ceiling: adequate into the low thousands of
// connections, after which per-recipient broker subscriptions filtered
// server-side would be the next step.
type Dispatcher struct {
	queue    messagequeue.Queue
	registry *Registry
	auth     *Authorizer
	subject  string
	metrics  *otel.Metrics
}

// NewDispatcher creates a Dispatcher consuming the given wildcard subject.
func NewDispatcher(queue messagequeue.Queue, registry *Registry, auth *Authorizer, subject string, metrics *otel.Metrics) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		registry: registry,
		auth:     auth,
		subject:  subject,
		metrics:  metrics,
	}
}

// Start subscribes to the bus. The returned function cancels the
// subscription; in-flight handlers finish, nothing blocks shutdown.
func (d *Dispatcher) Start(ctx context.Context) (cancel func(), err error) {
	cancel, err = d.queue.Subscribe(ctx, d.subject, d.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", d.subject, err)
	}
	slog.Info("dispatcher started", "subject", d.subject)
	return cancel, nil
}

// Handle processes one raw bus message. A malformed payload is logged,
// counted and dropped with a nil return: redelivering a poison message
// cannot make it parse. Duplicates are harmless by construction since
// clients treat frames as re-fetch hints, not state.
func (d *Dispatcher) Handle(ctx context.Context, subject string, data []byte) error {
	ev, err := event.Decode(subject, data)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			d.metrics.AddEventMalformed(ctx)
			slog.WarnContext(ctx, "dropping malformed event", "subject", subject, "error", err)
			return nil
		}
		return err
	}
	d.metrics.AddEventConsumed(ctx)

	conns := d.registry.Snapshot()

	ctx, span := otel.StartDispatchSpan(ctx, subject, len(conns))
	defer span.End()

	// Serialize once; every matching connection gets the same frame.
	frame, err := json.Marshal(ev.Wire())
	if err != nil {
		return fmt.Errorf("marshal wire message: %w", err)
	}

	for _, c := range conns {
		if !d.auth.Authorized(ctx, c.Identity, ev.GuildID) {
			d.metrics.AddAuthzDenied(ctx)
			continue
		}

		if !c.TryEnqueue(frame) {
			d.metrics.AddFrameDropped(ctx)
			slog.DebugContext(ctx, "queue full, frame dropped",
				"connection_id", c.ID,
				"identity", c.Identity,
				"guild_id", ev.GuildID,
			)
			continue
		}
		d.metrics.AddFrameEnqueued(ctx)
	}

	return nil
}

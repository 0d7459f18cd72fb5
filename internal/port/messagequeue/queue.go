// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// Delivery is at-least-once: handlers must tolerate duplicates.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages matching the given
	// subject pattern (wildcards allowed). The returned function cancels
	// the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject conventions for the guildplan bus. The scheduling backend
// publishes to "<kind>.updated.<guild_id>"; the bridge subscribes with a
// single-token wildcard so it receives every guild and performs
// authorization itself rather than relying on broker-side ACLs.
const (
	// SubjectEventUpdated is the wildcard covering scheduled-event
	// updates across all guilds.
	SubjectEventUpdated = "event.updated.*"
)

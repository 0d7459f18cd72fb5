// Package event defines the change event flowing from the message bus to
// connected clients.
package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guildplan/bridge/internal/domain"
)

// Event is a single decoded change notification. Immutable once decoded;
// it lives for exactly one dispatch pass and is never persisted.
type Event struct {
	// Kind is the entity kind, e.g. "event" for a scheduled guild event.
	Kind string
	// GuildID is the guild the change is scoped to.
	GuildID string
	// EntityID identifies the changed entity within the guild.
	EntityID string
}

// payload is the JSON body publishers put on the bus. The guild ID is
// carried redundantly in the routing subject; the body is authoritative
// for the entity ID only.
type payload struct {
	EntityID string `json:"entity_id"`
}

// WireMessage is the frame pushed to clients. Clients treat it as a hint
// and re-fetch authoritative state for EntityID.
type WireMessage struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	TenantID string `json:"tenant_id"`
}

// Decode parses a bus message into an Event. The subject carries the
// routing convention "<kind>.updated.<guild_id>"; the data carries the
// entity ID. Any failure wraps domain.ErrMalformedEvent.
func Decode(subject string, data []byte) (Event, error) {
	kind, guildID, err := parseSubject(subject)
	if err != nil {
		return Event{}, err
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: payload of %q: %v", domain.ErrMalformedEvent, subject, err)
	}
	if p.EntityID == "" {
		return Event{}, fmt.Errorf("%w: payload of %q: missing entity_id", domain.ErrMalformedEvent, subject)
	}

	return Event{Kind: kind, GuildID: guildID, EntityID: p.EntityID}, nil
}

// parseSubject splits "<kind>.updated.<guild_id>".
func parseSubject(subject string) (kind, guildID string, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[1] != "updated" || parts[0] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: subject %q", domain.ErrMalformedEvent, subject)
	}
	return parts[0], parts[2], nil
}

// Wire returns the client-facing message for this event.
func (e Event) Wire() WireMessage {
	return WireMessage{
		Type:     e.Kind + "_updated",
		EntityID: e.EntityID,
		TenantID: e.GuildID,
	}
}

// Encode marshals the payload publishers send for an entity change.
func Encode(entityID string) ([]byte, error) {
	return json.Marshal(payload{EntityID: entityID})
}

// Subject returns the bus routing subject for this event.
func (e Event) Subject() string {
	return e.Kind + ".updated." + e.GuildID
}

// Package membership defines the port for guild membership lookups.
package membership

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the provider could not answer (network error,
// timeout, circuit open). Callers must fail closed: an availability loss
// is never allowed to become a guild-isolation violation.
var ErrUnavailable = errors.New("membership provider unavailable")

// Provider answers which guilds an identity currently belongs to.
// Implementations may serve from their own cache with a multi-minute TTL;
// calls can therefore be stale or expensive, and should be bounded by the
// caller's context deadline.
type Provider interface {
	Memberships(ctx context.Context, identity string) ([]string, error)
}

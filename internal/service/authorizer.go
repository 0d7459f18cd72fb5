package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildplan/bridge/internal/adapter/otel"
	"github.com/guildplan/bridge/internal/config"
	"github.com/guildplan/bridge/internal/port/cache"
	"github.com/guildplan/bridge/internal/port/membership"
	"github.com/guildplan/bridge/internal/resilience"
)

// Authorizer decides, per dispatched event, whether an identity may
// receive events for a guild. Membership sets are cached with a fixed TTL;
// once an entry expires the next check re-fetches from the provider, which
// is the sole mechanism by which a revoked membership stops deliveries to
// an already-open connection.
type Authorizer struct {
	provider membership.Provider
	cache    cache.Cache
	breaker  *resilience.Breaker
	ttl      time.Duration
	timeout  time.Duration
	metrics  *otel.Metrics
}

// NewAuthorizer creates an Authorizer. The breaker guards the provider;
// while it is open every check fails closed without a provider call.
func NewAuthorizer(provider membership.Provider, c cache.Cache, breaker *resilience.Breaker, cfg config.Membership, metrics *otel.Metrics) *Authorizer {
	return &Authorizer{
		provider: provider,
		cache:    c,
		breaker:  breaker,
		ttl:      cfg.CacheTTL,
		timeout:  cfg.LookupTimeout,
		metrics:  metrics,
	}
}

// Authorized reports whether identity is currently a member of guildID.
// Provider failures fail closed: better to miss one push than to leak a
// guild's events across the isolation boundary.
func (a *Authorizer) Authorized(ctx context.Context, identity, guildID string) bool {
	guilds, err := a.memberships(ctx, identity)
	if err != nil {
		a.metrics.AddMembershipFailure(ctx)
		slog.WarnContext(ctx, "membership lookup failed, denying",
			"identity", identity,
			"guild_id", guildID,
			"error", err,
		)
		return false
	}

	for _, g := range guilds {
		if g == guildID {
			return true
		}
	}
	return false
}

// cacheKey namespaces membership entries in the shared cache.
func cacheKey(identity string) string {
	return "memberships:" + identity
}

// memberships returns the cached-or-fetched guild set for identity.
// Failed lookups are not cached: failing closed for one check is safe,
// but caching the failure would extend an outage into a TTL-long denial.
func (a *Authorizer) memberships(ctx context.Context, identity string) ([]string, error) {
	key := cacheKey(identity)

	if data, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var guilds []string
		if err := json.Unmarshal(data, &guilds); err == nil {
			return guilds, nil
		}
		// Unreadable entry: drop it and fall through to a fresh fetch.
		_ = a.cache.Delete(ctx, key)
	}

	lctx, span := otel.StartLookupSpan(ctx, identity)
	defer span.End()

	var guilds []string
	err := a.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(lctx, a.timeout)
		defer cancel()

		var err error
		guilds, err = a.provider.Memberships(callCtx, identity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", membership.ErrUnavailable, err)
	}

	if data, err := json.Marshal(guilds); err == nil {
		_ = a.cache.Set(ctx, key, data, a.ttl)
	}

	return guilds, nil
}

// Invalidate drops the cached membership set for identity, forcing the
// next check to hit the provider.
func (a *Authorizer) Invalidate(ctx context.Context, identity string) error {
	return a.cache.Delete(ctx, cacheKey(identity))
}

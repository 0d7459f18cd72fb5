package service

import (
	"context"
	"sync"
	"time"
)

// fakeProvider is an in-memory membership.Provider with injectable
// failures and a call counter.
type fakeProvider struct {
	mu     sync.Mutex
	guilds map[string][]string
	err    error
	calls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{guilds: make(map[string][]string)}
}

func (p *fakeProvider) set(identity string, guilds ...string) {
	p.mu.Lock()
	p.guilds[identity] = guilds
	p.mu.Unlock()
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) Memberships(_ context.Context, identity string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.guilds[identity], nil
}

// fakeCache is a TTL-honoring in-memory cache with an injectable clock,
// so tests can expire entries without sleeping.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{data: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

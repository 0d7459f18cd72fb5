// Package service contains the bridge application logic: the connection
// registry, the authorization filter and the event dispatcher.
package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection is a single client's half of a push stream. The dispatcher
// only ever enqueues into it (non-blocking, drop on full); the streaming
// endpoint that created it is the sole reader of the queue. A
// reconnecting client gets a brand-new Connection with a new ID.
type Connection struct {
	ID        string
	Identity  string
	CreatedAt time.Time

	queue    chan []byte
	lastSent atomic.Int64 // unix nanos of the last successful client write
}

// NewConnection creates a Connection for the given identity with a
// bounded outbound queue of queueCap frames.
func NewConnection(identity string, queueCap int) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		Identity:  identity,
		CreatedAt: time.Now(),
		queue:     make(chan []byte, queueCap),
	}
}

// TryEnqueue offers a frame to the connection's queue without blocking.
// It reports false when the queue is full; the frame is dropped for this
// connection only and already-queued frames keep their order.
func (c *Connection) TryEnqueue(frame []byte) bool {
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

// Frames returns the receive side of the outbound queue. Only the
// owning streaming endpoint may receive from it.
func (c *Connection) Frames() <-chan []byte {
	return c.queue
}

// MarkSent records a successful write to the client.
func (c *Connection) MarkSent(t time.Time) {
	c.lastSent.Store(t.UnixNano())
}

// LastSentAt returns the time of the last successful client write, or
// the zero time if nothing has been written yet.
func (c *Connection) LastSentAt() time.Time {
	n := c.lastSent.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Registry is the concurrency-safe collection of active connections.
// Many streaming endpoints register and unregister while the dispatcher
// iterates; Snapshot hands the dispatcher a defensive copy so iteration
// never races a removal.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register adds a connection.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
}

// Unregister removes the connection with the given ID. Removing an
// already-removed ID is a no-op: disconnect and forced close can race.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the active connections.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of active connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

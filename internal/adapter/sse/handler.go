// Package sse implements the Server-Sent Events streaming endpoint.
//
// SSE is the primary transport because the browser EventSource API
// cannot attach custom headers; the credential rides on the session
// cookie instead.
package sse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/guildplan/bridge/internal/adapter/otel"
	"github.com/guildplan/bridge/internal/config"
	"github.com/guildplan/bridge/internal/port/identity"
	"github.com/guildplan/bridge/internal/service"
)

// Handler serves one long-lived push stream per request. Each request
// gets its own Connection registered for the lifetime of the stream and
// unregistered on every exit path.
type Handler struct {
	registry  *service.Registry
	auth      identity.Authenticator
	queueCap  int
	keepalive time.Duration
	metrics   *otel.Metrics
}

// NewHandler creates the SSE handler.
func NewHandler(registry *service.Registry, auth identity.Authenticator, cfg config.Bridge, metrics *otel.Metrics) *Handler {
	return &Handler{
		registry:  registry,
		auth:      auth,
		queueCap:  cfg.QueueCapacity,
		keepalive: cfg.KeepaliveInterval,
		metrics:   metrics,
	}
}

// ServeHTTP runs the stream until the client disconnects, a write fails,
// or the server shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}
		slog.ErrorContext(r.Context(), "stream authentication failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so frames reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	conn := service.NewConnection(id, h.queueCap)
	h.registry.Register(conn)
	h.metrics.ConnectionOpened(r.Context())
	slog.InfoContext(r.Context(), "stream opened",
		"connection_id", conn.ID,
		"identity", id,
		"remote", r.RemoteAddr,
	)

	defer func() {
		h.registry.Unregister(conn.ID)
		h.metrics.ConnectionClosed(r.Context())
		slog.InfoContext(r.Context(), "stream closed", "connection_id", conn.ID)
	}()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-conn.Frames():
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				slog.DebugContext(ctx, "stream write failed", "connection_id", conn.ID, "error", err)
				return
			}
			flusher.Flush()
			conn.MarkSent(time.Now())

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				slog.DebugContext(ctx, "keepalive write failed", "connection_id", conn.ID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

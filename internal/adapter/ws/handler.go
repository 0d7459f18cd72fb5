// Package ws implements the WebSocket streaming endpoint, an alternate
// transport for clients that can hold a socket. It shares the Connection,
// registry and dispatcher with the SSE endpoint; only the framing and
// keepalive mechanics differ (ping frames instead of comment lines).
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/guildplan/bridge/internal/adapter/otel"
	"github.com/guildplan/bridge/internal/config"
	"github.com/guildplan/bridge/internal/port/identity"
	"github.com/guildplan/bridge/internal/service"
)

// Handler upgrades requests and drains one Connection per socket.
type Handler struct {
	registry  *service.Registry
	auth      identity.Authenticator
	queueCap  int
	keepalive time.Duration
	metrics   *otel.Metrics
}

// NewHandler creates the WebSocket handler.
func NewHandler(registry *service.Registry, auth identity.Authenticator, cfg config.Bridge, metrics *otel.Metrics) *Handler {
	return &Handler{
		registry:  registry,
		auth:      auth,
		queueCap:  cfg.QueueCapacity,
		keepalive: cfg.KeepaliveInterval,
		metrics:   metrics,
	}
}

// HandleWS runs the stream until the client disconnects, a write fails,
// or the server shuts down.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
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

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := service.NewConnection(id, h.queueCap)
	h.registry.Register(conn)
	h.metrics.ConnectionOpened(r.Context())
	slog.InfoContext(ctx, "websocket opened",
		"connection_id", conn.ID,
		"identity", id,
		"remote", r.RemoteAddr,
	)

	defer func() {
		h.registry.Unregister(conn.ID)
		h.metrics.ConnectionClosed(r.Context())
		_ = ws.Close(websocket.StatusNormalClosure, "")
		slog.InfoContext(ctx, "websocket closed", "connection_id", conn.ID)
	}()

	// Read loop: the bridge pushes only, but reading detects disconnects
	// and consumes client pings.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-conn.Frames():
			if err := ws.Write(ctx, websocket.MessageText, frame); err != nil {
				slog.DebugContext(ctx, "websocket write failed", "connection_id", conn.ID, "error", err)
				return
			}
			conn.MarkSent(time.Now())

		case <-ticker.C:
			if err := ws.Ping(ctx); err != nil {
				slog.DebugContext(ctx, "websocket ping failed", "connection_id", conn.ID, "error", err)
				return
			}
		}
	}
}

package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guildplan/bridge/internal/config"
	"github.com/guildplan/bridge/internal/port/identity"
	"github.com/guildplan/bridge/internal/service"
)

// stubAuth authenticates every request as a fixed identity, or rejects
// everything when identity is empty.
type stubAuth struct {
	identity string
}

func (a *stubAuth) Authenticate(*http.Request) (string, error) {
	if a.identity == "" {
		return "", identity.ErrUnauthenticated
	}
	return a.identity, nil
}

func testBridgeCfg(keepalive time.Duration) config.Bridge {
	return config.Bridge{
		QueueCapacity:     8,
		KeepaliveInterval: keepalive,
	}
}

// openStream starts the stream against a live test server and returns a
// line scanner over the response body.
func openStream(t *testing.T, srv *httptest.Server) (*bufio.Scanner, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}

	return bufio.NewScanner(resp.Body), cancel
}

// waitForConnection polls the registry until the stream has registered.
func waitForConnection(t *testing.T, registry *service.Registry) *service.Connection {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := registry.Snapshot(); len(snap) == 1 {
			return snap[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stream never registered a connection")
	return nil
}

// nextLine reads lines until a non-empty one arrives.
func nextLine(t *testing.T, sc *bufio.Scanner) string {
	t.Helper()
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			return line
		}
	}
	t.Fatalf("stream ended early: %v", sc.Err())
	return ""
}

func TestStreamDeliversFrames(t *testing.T) {
	registry := service.NewRegistry()
	h := NewHandler(registry, &stubAuth{identity: "u1"}, testBridgeCfg(time.Minute), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sc, _ := openStream(t, srv)

	if line := nextLine(t, sc); line != ": connected" {
		t.Fatalf("greeting = %q", line)
	}

	conn := waitForConnection(t, registry)
	if conn.Identity != "u1" {
		t.Fatalf("identity = %q, want %q", conn.Identity, "u1")
	}

	conn.TryEnqueue([]byte(`{"type":"event_updated","entity_id":"e1","tenant_id":"g1"}`))
	if line := nextLine(t, sc); line != `data: {"type":"event_updated","entity_id":"e1","tenant_id":"g1"}` {
		t.Fatalf("frame = %q", line)
	}
}

func TestStreamPreservesFrameOrder(t *testing.T) {
	registry := service.NewRegistry()
	h := NewHandler(registry, &stubAuth{identity: "u1"}, testBridgeCfg(time.Minute), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sc, _ := openStream(t, srv)
	nextLine(t, sc) // greeting

	conn := waitForConnection(t, registry)
	conn.TryEnqueue([]byte(`{"n":1}`))
	conn.TryEnqueue([]byte(`{"n":2}`))

	if line := nextLine(t, sc); line != `data: {"n":1}` {
		t.Fatalf("first frame = %q", line)
	}
	if line := nextLine(t, sc); line != `data: {"n":2}` {
		t.Fatalf("second frame = %q", line)
	}
}

func TestStreamEmitsKeepalivesWhenIdle(t *testing.T) {
	registry := service.NewRegistry()
	h := NewHandler(registry, &stubAuth{identity: "u1"}, testBridgeCfg(20*time.Millisecond), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sc, _ := openStream(t, srv)
	nextLine(t, sc) // greeting

	if line := nextLine(t, sc); !strings.HasPrefix(line, ":") {
		t.Fatalf("expected keepalive comment, got %q", line)
	}
}

func TestStreamRejectsUnauthenticated(t *testing.T) {
	registry := service.NewRegistry()
	h := NewHandler(registry, &stubAuth{}, testBridgeCfg(time.Minute), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", registry.Len())
	}
}

func TestDisconnectUnregistersConnection(t *testing.T) {
	registry := service.NewRegistry()
	h := NewHandler(registry, &stubAuth{identity: "u1"}, testBridgeCfg(time.Minute), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sc, cancel := openStream(t, srv)
	nextLine(t, sc) // greeting
	waitForConnection(t, registry)

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection still registered after disconnect, len = %d", registry.Len())
}

package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// collectHandler records every record it handles, optionally blocking
// until released to simulate a slow sink.
type collectHandler struct {
	mu      sync.Mutex
	records []slog.Record
	block   chan struct{}
}

func (h *collectHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *collectHandler) Handle(_ context.Context, rec slog.Record) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *collectHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *collectHandler) WithGroup(string) slog.Handler      { return h }

func (h *collectHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandlerDelivers(t *testing.T) {
	inner := &collectHandler{}
	h := NewAsyncHandler(inner, 16, 1)

	log := slog.New(h)
	log.Info("one")
	log.Info("two")

	h.Close()

	if got := inner.count(); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if h.DroppedCount() != 0 {
		t.Fatalf("dropped = %d, want 0", h.DroppedCount())
	}
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	inner := &collectHandler{block: make(chan struct{})}
	h := NewAsyncHandler(inner, 1, 1)

	log := slog.New(h)
	// First record is picked up by the worker and blocks; the second
	// fills the channel; the rest must be dropped, never block.
	for range 10 {
		log.Info("flood")
	}

	deadline := time.Now().Add(time.Second)
	for h.DroppedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.DroppedCount() == 0 {
		t.Fatal("expected records to be dropped under backpressure")
	}

	close(inner.block)
	h.Close()
}

func TestAsyncHandlerWithAttrsSharesChannel(t *testing.T) {
	inner := &collectHandler{}
	h := NewAsyncHandler(inner, 16, 1)

	child := h.WithAttrs([]slog.Attr{slog.String("k", "v")})
	slog.New(child).Info("via child")

	h.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
}

// Command bridge runs the guildplan real-time event bridge: it consumes
// guild-scoped change events from NATS and re-emits them as authorized
// per-client push streams over SSE and WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	gpnats "github.com/guildplan/bridge/internal/adapter/nats"
	gpotel "github.com/guildplan/bridge/internal/adapter/otel"
	"github.com/guildplan/bridge/internal/adapter/postgres"
	"github.com/guildplan/bridge/internal/adapter/ristretto"
	"github.com/guildplan/bridge/internal/adapter/sse"
	"github.com/guildplan/bridge/internal/adapter/ws"
	"github.com/guildplan/bridge/internal/config"
	"github.com/guildplan/bridge/internal/logger"
	"github.com/guildplan/bridge/internal/middleware"
	"github.com/guildplan/bridge/internal/port/messagequeue"
	"github.com/guildplan/bridge/internal/resilience"
	"github.com/guildplan/bridge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"nats_subject", cfg.NATS.Subject,
		"queue_capacity", cfg.Bridge.QueueCapacity,
		"membership_ttl", cfg.Membership.CacheTTL,
	)

	// Root context: cancelled on SIGINT/SIGTERM. Every streaming handler
	// hangs off it via the server BaseContext, so one signal unwinds all
	// open streams.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := gpotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := gpotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := gpnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	l1, err := ristretto.New(cfg.Membership.CacheMaxBytes)
	if err != nil {
		return fmt.Errorf("membership cache: %w", err)
	}
	defer l1.Close()

	// --- Bridge core ---
	members := postgres.NewMembershipStore(pool)
	sessions := postgres.NewSessionAuthenticator(pool, cfg.Bridge.SessionCookie)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	registry := service.NewRegistry()
	authorizer := service.NewAuthorizer(members, l1, breaker, cfg.Membership, metrics)
	dispatcher := service.NewDispatcher(queue, registry, authorizer, cfg.NATS.Subject, metrics)

	cancelSub, err := dispatcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer cancelSub()

	// --- HTTP ---
	sseHandler := sse.NewHandler(registry, sessions, cfg.Bridge, metrics)
	wsHandler := ws.NewHandler(registry, sessions, cfg.Bridge, metrics)

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(gpotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.RequestLogger)

	r.Get("/health", healthHandler(pool, queue))
	r.Get("/api/v1/stream", sseHandler.ServeHTTP)
	r.Get("/ws", wsHandler.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: streams are long-lived by design; liveness is
		// handled by keepalives and client disconnect detection.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Streams exit via BaseContext cancellation; Shutdown then waits
		// for the handlers to unwind before closing the listener.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		cancelSub()
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// healthHandler reports service health and dependency status.
func healthHandler(pool *pgxpool.Pool, queue messagequeue.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok"}

		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}

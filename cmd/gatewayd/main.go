// gatewayd is a runnable example host for the runner gateway: it wires
// in-memory stand-ins for the external collaborators (§6), mounts the
// upgrade endpoint behind chi, and runs the HTTP server under an errgroup.
// The gateway's background tasks are started by gw.Start and stopped by
// gw.Shutdown, outside the errgroup.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/rivet-gg/engine/internal/auth"
	"github.com/rivet-gg/engine/internal/config"
	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/gateway"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("gatewayd: invalid configuration", "error", err)
		os.Exit(1)
	}

	namespaces, runners, actors := seedExampleDirectories()
	deps := gateway.Deps{
		Namespaces: namespaces,
		Runners:    runners,
		AllocIndex: external.NewFakeAllocIndex(),
		Actors:     actors,
		KV:         external.NewFakeKVBackend(),
		Workflows:  external.NewFakeWorkflowEngine(),
		CommandBus: external.NewCommandBus(64),
	}
	gw := gateway.New(cfg, deps)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET"},
		AllowedOrigins: []string{"*"},
	}))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// auth.APIKey only checks requests against auth.AdminPaths, so it is
	// safe to mount ahead of every route rather than threading it onto
	// /readyz and /metrics individually.
	r.Use(auth.APIKey(cfg.AdminAPIKey))
	r.Get("/ws", gw.HandleUpgrade)
	r.Get("/healthz", gw.HandleHealthLive)
	r.Get("/readyz", gw.HandleHealthReady)
	r.Get("/metrics", gw.HandleMetrics)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("gatewayd: listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("gatewayd: received signal, shutting down", "signal", sig)
	case <-gctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("gatewayd: http shutdown error", "error", err)
	}

	gw.Shutdown(shutdownCtx)
	cancel()

	if err := g.Wait(); err != nil {
		slog.Error("gatewayd: server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gatewayd: shutdown complete")
}

// seedExampleDirectories seeds one fake namespace ("default") so the
// example binary's /ws endpoint is exercisable out of the box; the runner
// and actor directories start empty. A real host replaces all three with
// its own backends.
func seedExampleDirectories() (*external.FakeNamespaceResolver, *external.FakeRunnerDirectory, *external.FakeActorLookup) {
	namespaces := external.NewFakeNamespaceResolver()
	namespaces.Put("default", "ns-default")

	runners := external.NewFakeRunnerDirectory()
	actors := external.NewFakeActorLookup()
	return namespaces, runners, actors
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/au2001/graph-node/internal/app/migrate"
	"github.com/au2001/graph-node/internal/events"
	httpx "github.com/au2001/graph-node/internal/http"
	"github.com/au2001/graph-node/internal/repository/postgres"
	"github.com/au2001/graph-node/internal/service/deployment"
	"github.com/au2001/graph-node/internal/service/restart"
	"github.com/au2001/graph-node/internal/ws"
	"github.com/au2001/graph-node/pkg/config"
	"github.com/au2001/graph-node/pkg/logger"
)

func main() {
	cfg := config.LoadGraphmanConfig()
	log := logger.New("graphman", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// the mirror may point at a read replica; without one it degrades to a
	// primary-only mirror
	mirrorPool := pool
	if cfg.MirrorDatabaseURL != "" {
		mirrorPool, err = pgxpool.New(ctx, cfg.MirrorDatabaseURL)
		if err != nil {
			log.Error("failed to connect to mirror database", "error", err)
			os.Exit(1)
		}
		defer mirrorPool.Close()
	}

	repo := postgres.New(pool)
	mirror := postgres.NewMirror(mirrorPool)
	hub := ws.NewHub()
	defer hub.Shutdown()

	sinks := events.Fanout{events.NewHubSink(hub)}
	if cfg.EventsRedisAddr != "" {
		publisher, err := events.NewRedisPublisher(cfg.EventsRedisAddr, cfg.EventsRedisPass, cfg.EventsRedisDB, cfg.EventsRedisChannel, log)
		if err != nil {
			log.Warn("redis event publisher unavailable", "error", err)
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}

	deploySvc := deployment.New(repo, mirror, log)
	restartMgr := restart.NewManager(deploySvc, repo, sinks, log, cfg.RestartDelayDefault)

	router := httpx.NewRouter(log, deploySvc, restartMgr, hub, pool.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("graphman api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		waitExecutions(restartMgr, cfg.ShutdownGrace, log)
		log.Info("graphman api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// waitExecutions gives in-flight restarts a bounded chance to finish. The
// store keeps their state either way; an execution cut off here simply stops
// advancing.
func waitExecutions(mgr *restart.Manager, grace time.Duration, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("in-flight executions did not finish before shutdown", "grace", grace)
	}
}

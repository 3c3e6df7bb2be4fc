package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/api"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/config"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/factory"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/scoreboard"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Configure(logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	logger.Info("Starting highscore server...",
		"port", cfg.ListenPort,
		"mode", cfg.ServerMode,
		"capacity", cfg.LedgerCapacity,
		"storage", cfg.StorageMode,
		"runtime", cfg.Runtime)

	// Create ledger store
	store, closer, err := factory.NewStoreFactory(cfg).Create(ctx)
	if err != nil {
		logger.Fatal("Failed to create ledger store", "error", err)
	}
	defer closer.Close()

	// Load saved scores; a failure leaves the ledger empty
	board := scoreboard.NewService(ledger.New(cfg.LedgerCapacity), store)
	if err := board.Load(ctx); err != nil {
		logger.Warn("Continuing with empty ledger", "error", err)
	}

	// Start TCP listener
	listener, err := net.Listen("tcp", ":"+cfg.ListenPort)
	if err != nil {
		logger.Fatal("Failed to start listener", "port", cfg.ListenPort, "error", err)
	}
	logger.Info("Score server listening", "addr", listener.Addr().String())

	server := &core.Server{
		Listener:          listener,
		ConnectionHandler: session.NewHandler(board.Ledger),
		Persister:         board,
		Sequential:        cfg.Sequential(),
	}

	var healthServer *api.Server
	if cfg.HealthServerPort != "" {
		healthServer = api.NewServer(":"+cfg.HealthServerPort, board.Ledger)
		healthServer.Start(nil)
		logger.Info("Health server started", "port", cfg.HealthServerPort)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		if healthServer != nil {
			healthServer.SetReady(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Sessions still open at shutdown", "error", err)
		}
		if healthServer != nil {
			if err := healthServer.Stop(shutdownCtx); err != nil {
				logger.Warn("Health server shutdown failed", "error", err)
			}
		}
		return nil
	})

	// Mark as ready
	if healthServer != nil {
		healthServer.SetReady(true)
	}
	logger.Info("Server is ready to accept connections")

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
	}

	// Final save so a stop signal never loses completed sessions.
	if err := board.Persist(context.Background()); err != nil {
		logger.Error("Failed to persist scores on shutdown", "error", err)
	}
	logger.Info("Shutdown complete")
}

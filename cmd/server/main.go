// Package main is the entry point for the launchpad engine server.
// The server hosts the bonding-curve launchpad: token launches, curve trading,
// graduation to external venues and merkle airdrops, behind a REST API with an
// SSE event stream and Prometheus metrics.
//
// The application follows clean architecture principles:
// - Engine components record into one journal; the host serializes entry points
// - Dependency injection via DI container
// - Repository pattern for the read models projected from engine events
// - Service layer in front of the engine
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/di"
	"github.com/aristath/launchpad/internal/server"
	"github.com/aristath/launchpad/pkg/logger"
)

// main is the application entry point:
// 1. Loads configuration from environment variables (.env file supported)
// 2. Initializes logging
// 3. Wires all dependencies via DI container
// 4. Starts the maintenance scheduler and the HTTP server
// 5. Waits for shutdown signal and performs graceful shutdown
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("curve", string(cfg.Curve.Kind)).
		Int("venues", len(cfg.Network.Venues)).
		Msg("Starting launchpad")

	// Wire all dependencies using DI container.
	// Databases first, then read models on the bus, then the engine and services,
	// then the maintenance jobs.
	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing the ledger writes the final WAL checkpoint
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop scheduling first so no job starts against a closing database
	container.Scheduler.Stop()

	// In-flight requests get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

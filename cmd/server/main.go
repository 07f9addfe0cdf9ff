/*
main.go - HTTP server entry point

PURPOSE:
  Serves published tables, integrity reports and exports, and runs the
  pipeline on demand (POST /api/runs). Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, YAML, environment)
  2. Initialize SQLite store (events, published tables, run history)
  3. Wire pipeline, event source, notifier, metrics and balance cache
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (default: $LEDGERONE_CONFIG)
  -port    HTTP server port, overrides configuration
  -db      SQLite database path, overrides configuration
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close source, notifier and database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledgerone.db"

  # Read events from an upstream Postgres table
  LEDGERONE_SOURCE=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - api/server.go: Router configuration
  - factory/runner.go: Runner wiring
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerone/warehouse/api"
	"github.com/ledgerone/warehouse/config"
	"github.com/ledgerone/warehouse/factory"
	"github.com/ledgerone/warehouse/metrics"
	"github.com/ledgerone/warehouse/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *port > 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	logger := cfg.Logger()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	wiring, err := factory.NewRunner(ctx, cfg, store, metrics.Default(), logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire pipeline")
	}
	defer wiring.Close()

	handler := api.NewHandler(store, wiring.Runner, wiring.Cache, logger)
	router := api.NewRouter(handler, nil)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/runs runs the whole pipeline
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Int("port", cfg.HTTP.Port).
			Str("source", cfg.Source.Kind).
			Bool("kafka", cfg.Kafka.Enabled()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}

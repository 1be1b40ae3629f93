// Package main is the entry point for the Quartermaster rental and
// purchasing backend. It wires configuration, databases, repositories and
// engines through the DI container, starts the maintenance scheduler and
// serves the HTTP API until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/di"
	"github.com/aristath/quartermaster/internal/server"
	"github.com/aristath/quartermaster/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New("info", true)
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.DevMode)

	log.Info().Str("data_dir", cfg.DataDir).Str("timezone", cfg.Timezone).Msg("Starting Quartermaster")

	// Wire databases, repositories, engines and jobs.
	container, err := di.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	container.Scheduler.Start()
	log.Info().Strs("jobs", container.Scheduler.JobNames()).Msg("Scheduler started")

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Close stops the scheduler and checkpoints both databases.
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Error during container shutdown")
	}

	log.Info().Msg("Quartermaster stopped")
}

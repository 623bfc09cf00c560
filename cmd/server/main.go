package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/config"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/di"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/scheduler"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{Level: "info"}).Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().Str("version", version.Version).Msg("Starting IBKR portfolio tracker")

	ctx := context.Background()
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer container.Close()

	sched := scheduler.New(log)
	if cfg.Sync.SchedulerEnabled {
		if err := di.RegisterJobs(sched, container, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to register jobs")
		}
		sched.Start()
	} else {
		log.Info().Msg("Scheduler disabled")
	}

	router := api.NewRouter(container.APIServices(), cfg, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if cfg.Sync.SchedulerEnabled {
		sched.Stop()
	}

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/smartfinance/internal/api/handlers"
	"github.com/dvloznov/smartfinance/internal/app"
	"github.com/dvloznov/smartfinance/internal/config"
	"github.com/dvloznov/smartfinance/internal/jobs/inmemory"
	"github.com/dvloznov/smartfinance/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		envFile = flag.String("env", "", "Path to a .env file (default: ./.env if present)")
		port    = flag.String("port", "", "HTTP server port (overrides PORT)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log, err := logger.NewWithLevel(cfg.Server.LogLevel)
	if err != nil {
		log = logger.New()
		log.Warn().Err(err).Msg("Invalid LOG_LEVEL, using info")
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start ledger")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close ledger")
		}
	}()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize: 100,
		MaxRetries: cfg.Export.MaxRetries,
	}, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting export workers")
	if err := jobQueue.Start(workerCtx, a.Exporter.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start export workers")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Session:       a.Session,
		Banners:       a.Banners,
		Advisor:       a.Advisor,
		Publisher:     jobQueue,
		Jobs:          jobStore,
		ExportEnabled: a.Exporter.Enabled,
		DefaultUserID: cfg.Server.DefaultUserID,
		Log:           log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("mode", string(a.Session.Mode())).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/relay/internal/api"
	"github.com/timmy/relay/internal/api/middleware"
	"github.com/timmy/relay/internal/config"
	"github.com/timmy/relay/internal/jobstore"
	"github.com/timmy/relay/internal/logger"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/relay"
	"github.com/timmy/relay/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Root context cancelled on shutdown; stops the janitor with the server
	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Initialize provider registry
	registry := provider.NewRegistry(&provider.Config{
		OpenAIBaseURL: cfg.Providers.OpenAI.BaseURL,
		GeminiBaseURL: cfg.Providers.Gemini.BaseURL,
		Timeout:       cfg.Providers.RequestTimeout,
	})

	// Initialize job store and background janitor
	store := jobstore.New(&jobstore.Config{
		MaxAge:   cfg.Jobs.MaxAge,
		MaxCount: cfg.Jobs.MaxCount,
	}, appLogger)
	store.StartJanitor(ctx, cfg.Jobs.JanitorInterval)

	// Initialize job processor
	processor := relay.NewProcessor(store, relay.ProviderClientFactory(registry), appLogger, &relay.ProcessorConfig{
		RequestTimeout: cfg.Jobs.RequestTimeout,
	})

	// Initialize optional audio archive (supports MinIO, R2, S3)
	var archive storage.ObjectStorage
	if cfg.Archive.Enabled {
		archive, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Archive.Type),
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			PublicURL: cfg.Archive.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize audio archive")
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
	}

	// Initialize segment synthesizer
	synthesizer := relay.NewSynthesizer(&relay.SynthesisConfig{
		MaxSegments:    cfg.Synthesis.MaxSegments,
		MaxTotalChars:  cfg.Synthesis.MaxTotalChars,
		MaxConcurrency: cfg.Synthesis.MaxConcurrency,
		MaxRetries:     cfg.Synthesis.MaxRetries,
		BaseDelay:      cfg.Synthesis.BaseDelay,
		MaxDelay:       cfg.Synthesis.MaxDelay,
		AttemptTimeout: cfg.Synthesis.AttemptTimeout,
	}, archive, appLogger)

	// Setup router
	router := api.SetupRouter(api.RouterDeps{
		Processor:   processor,
		Store:       store,
		Synthesizer: synthesizer,
		Registry:    registry,
		Logger:      appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting relay server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancelRoot()

	// Graceful shutdown with timeout. In-flight jobs finish on their own
	// goroutines; their results stay pollable until the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

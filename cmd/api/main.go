package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/api"
	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/cache"
	"github.com/saturnino-fabrica-de-software/presenca/internal/config"
	"github.com/saturnino-fabrica-de-software/presenca/internal/database"
	"github.com/saturnino-fabrica-de-software/presenca/internal/engine"
	"github.com/saturnino-fabrica-de-software/presenca/internal/face"
	"github.com/saturnino-fabrica-de-software/presenca/internal/quality"
	"github.com/saturnino-fabrica-de-software/presenca/internal/repository"
	"github.com/saturnino-fabrica-de-software/presenca/internal/service"
	"github.com/saturnino-fabrica-de-software/presenca/internal/webhook"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

const sweepInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Presenca API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.FaceProvider),
		slog.String("cache_backend", cfg.CacheBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer pool.Close()

	// Face model
	model, err := face.NewFaceModel(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create face model: %w", err)
	}

	// Audit events go to the log, the websocket stream and the webhook.
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	var notifier *webhook.Notifier
	if cfg.WebhookURL != "" {
		events := make([]audit.EventType, 0, len(cfg.WebhookEvents))
		for _, e := range cfg.WebhookEvents {
			events = append(events, audit.EventType(e))
		}
		notifier = webhook.NewNotifier(webhook.Config{
			URL:         cfg.WebhookURL,
			Secret:      cfg.WebhookSecret,
			Events:      events,
			MaxAttempts: cfg.WebhookMaxAttempts,
		}, logger)
		go notifier.Run(ctx)
	}

	sinks := []audit.Logger{audit.NewSlogLogger(logger), hub}
	if notifier != nil {
		sinks = append(sinks, notifier)
	}
	auditLogger := audit.Multi(sinks...)
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithAuditLogger(auditLogger),
		engine.WithModelName(cfg.FaceProvider),
		engine.WithModels(face.Models(cfg)...),
	}

	var pgStore *cache.PGStore
	switch cfg.CacheBackend {
	case config.CachePostgres:
		pgStore = cache.NewPGStore(pool)
		opts = append(opts, engine.WithCacheStore(pgStore))
	case config.CacheRedis:
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, engine.WithCacheStore(cache.NewRedisStore(client, "presenca:")))
	}

	eng, err := engine.New(cfg.Engine, model, opts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Warmup failures are not fatal: /ready reports them and requests retry.
	if err := eng.Warmup(ctx); err != nil {
		logger.Warn("model warmup failed", slog.Any("error", err))
	}

	sweeper := cache.NewSweeper(logger, sweepInterval, eng.DetectionCache())
	if pgStore != nil {
		sweeper.WithStore(pgStore)
	}
	go sweeper.Run(ctx)

	attendance := service.NewAttendance(
		repository.NewTemplateRepository(pool),
		eng,
		quality.New(cfg.Engine.Quality(), logger),
		cfg.Engine,
		auditLogger,
		logger,
	)

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Verifier:       eng,
		Attendance:     attendance,
		Models:         eng.Registry(),
		DB:             pool,
		Events:         hub,
		APIKeyHash:     cfg.APIKeyHash,
		AllowAnonymous: cfg.IsDevelopment(),
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Error("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}

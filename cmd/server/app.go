package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/assets"
	"github.com/pixforge/imagine-api/internal/config"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/pixforge/imagine-api/internal/events"
	"github.com/pixforge/imagine-api/internal/imagination"
	"github.com/pixforge/imagine-api/internal/platform/gemini"
	"github.com/pixforge/imagine-api/internal/platform/logger"
	"github.com/pixforge/imagine-api/internal/platform/postgres"
	"github.com/pixforge/imagine-api/internal/schedule"
	"github.com/pixforge/imagine-api/internal/worker"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// application holds the composed dependency graph.
type application struct {
	config *config.Config
	logger *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	imaginationService *imagination.Service
	bulkService        *imagination.BulkService

	runner    *worker.Runner
	scheduler *schedule.Scheduler
}

// initializeApp loads configuration and wires every component together.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	imaginationStore := postgres.NewImaginationStore(db, appLogger)
	bulkStore := postgres.NewBulkStore(db, appLogger)

	providerClient := &http.Client{Timeout: cfg.Providers.RequestTimeout}
	registry := buildRegistry(cfg.Providers, providerClient)

	var enricher gemini.Enricher
	if cfg.Enrichment.GeminiAPIKey != "" {
		enricher, err = gemini.NewGenAIEnricher(context.Background(), appLogger, cfg.Enrichment)
		if err != nil {
			return nil, fmt.Errorf("failed to create prompt enricher: %w", err)
		}
	} else {
		appLogger.Info("No Gemini API key configured, prompt enrichment disabled")
		enricher = gemini.NoopEnricher{}
	}

	pipeline := assets.NewHTTPPipeline(providerClient, cfg.Providers.UploadURL, appLogger)
	emitter := events.NewInMemoryEmitter(appLogger)

	runner := worker.NewRunner(worker.Config{
		WorkerCount: cfg.Lifecycle.WorkerCount,
		QueueSize:   cfg.Lifecycle.QueueSize,
	}, appLogger)

	app := &application{
		config: cfg,
		logger: appLogger,
		db:     db,
		rdb:    rdb,
		runner: runner,
	}

	// The dispatch closure resolves the service through app at call time,
	// so the scheduler can be built before the service that uses it.
	app.scheduler = schedule.New(rdb, appLogger, func(ctx context.Context, id uuid.UUID) {
		if err := runner.Submit(imagination.NewPollJob(app.imaginationService, id)); err != nil {
			appLogger.Error("failed to enqueue due poll", "imagination_id", id, "error", err)
		}
	})

	app.imaginationService = imagination.NewService(
		appLogger,
		imaginationStore,
		registry,
		enricher,
		pipeline,
		app.scheduler,
		runner,
		emitter,
		cfg.Lifecycle,
		cfg.Server.PublicBaseURL,
	)

	app.bulkService = imagination.NewBulkService(appLogger, bulkStore, imaginationStore, app.imaginationService)
	emitter.RegisterHandler(app.bulkService)

	return app, nil
}

// run starts the background machinery and the HTTP server, blocking until
// ctx is cancelled or the server fails.
func (app *application) run(ctx context.Context) error {
	app.runner.SetRecoverFunc(app.imaginationService.RecoverJobs)
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}
	app.scheduler.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		app.logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.scheduler.Stop()
	app.runner.Stop()
	app.logger.Info("Server shutdown completed")
	return nil
}

// cleanup releases held connections.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database connection", "error", err)
		}
	}
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("Failed to close redis connection", "error", err)
		}
	}
}

// buildRegistry assembles one adapter per configured engine.
func buildRegistry(cfg config.ProvidersConfig, client *http.Client) *engine.Registry {
	adapters := []engine.Adapter{
		engine.NewMidjourney(cfg.Midjourney, client),
		engine.NewImagen(cfg.Imagen, client),
		engine.NewDalle(cfg.Dalle, client),
	}
	for _, e := range []domain.Engine{
		domain.EngineIdeogram,
		domain.EngineFluxSchnell,
		domain.EngineFlux11,
		domain.EngineStability,
		domain.EngineCjwbw,
		domain.EngineLucataco,
		domain.EnginePollinations,
	} {
		adapters = append(adapters, engine.NewReplicate(e, cfg.Replicate, client))
	}
	return engine.NewRegistry(adapters...)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/timmy/geoimport/internal/api"
	"github.com/timmy/geoimport/internal/api/handler"
	"github.com/timmy/geoimport/internal/config"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/importer/transform"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/repository"
	"github.com/timmy/geoimport/internal/storage"
	"github.com/timmy/geoimport/internal/style"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	appLogger := logger.New(logOptions(&cfg.Log, "geoimport-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()

	ctx := context.Background()
	catalog := repository.NewCatalogRepository(db)
	if err := catalog.EnsureDefaults(ctx, cfg.Importer.DefaultWorkspace, cfg.Importer.Workspaces...); err != nil {
		appLogger.WithError(err).Fatal("Failed to seed catalog")
	}
	runs := repository.NewImportRunRepository(db)

	health := map[string]handler.HealthCheck{
		"database": sqlDB.PingContext,
	}

	opts := []importer.Option{
		importer.WithRunLog(runs),
		importer.WithLogger(appLogger),
	}
	if cfg.Styles.Enabled {
		resolver := style.NewResolver(&style.ClientConfig{
			BaseURL: cfg.Styles.BaseURL,
			APIKey:  cfg.Styles.APIKey,
			Timeout: cfg.Styles.Timeout,
		}, catalog)
		opts = append(opts, importer.WithDefaultTransforms(transform.NewStyleLookup(resolver, cfg.Styles.Lenient)))
		health["styles"] = resolver.Ping
		appLogger.WithFields(logger.Fields{
			"base_url": cfg.Styles.BaseURL,
			"lenient":  cfg.Styles.Lenient,
		}).Info("Style lookup enabled")
	}

	manager := importer.NewManager(catalog, &importer.Config{ScratchDir: cfg.Importer.ScratchDir}, opts...)
	runner := importer.NewRunner(manager, &importer.RunnerConfig{
		Workers:   cfg.Importer.RunWorkers,
		QueueSize: cfg.Importer.RunQueue,
	}, appLogger)

	var mirror *storage.Mirror
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		mirror = storage.NewMirror(objectStorage, cfg.Storage.Prefix)
	}

	uploadDir := filepath.Join(cfg.Importer.ScratchDir, "uploads")
	if cfg.Importer.ScratchDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "geoimport-uploads")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		appLogger.WithError(err).Fatal("Failed to create upload directory")
	}

	router := api.SetupRouter(&api.Dependencies{
		Manager:        manager,
		Runner:         runner,
		Runs:           runs,
		Catalog:        catalog,
		Mirror:         mirror,
		Health:         health,
		Logger:         appLogger,
		CORS:           cfg.Server.CORS,
		UploadDir:      uploadDir,
		MaxUploadBytes: cfg.Importer.MaxUploadMB << 20,
	}, cfg.Server.Mode)

	runCtx, stopRunner := context.WithCancel(ctx)
	runner.Start(runCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	runner.Stop()
	stopRunner()
	if err := manager.Close(); err != nil {
		appLogger.WithError(err).Warn("Failed to clean up import contexts")
	}

	appLogger.Info("Server exited")
}

// logOptions layers the log section of the config over the LOG_* environment.
func logOptions(cfg *config.LogConfig, service string) *logger.Options {
	opts := logger.OptionsFromEnv()
	opts.ServiceName = service
	if cfg.Level != "" {
		opts.Level = cfg.Level
	}
	if cfg.Format != "" {
		opts.Format = cfg.Format
	}
	if cfg.File != "" {
		opts.File = cfg.File
	}
	return opts
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-edge/app"
	"sentinel-edge/config"
	"sentinel-edge/handlers"
	"sentinel-edge/logger"
	"sentinel-edge/repository"
	"sentinel-edge/service"
	"sentinel-edge/storage"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to build analysis pipeline: %v", err)
	}
	defer components.Close()

	// Initialize storage
	fileStorage, err := storage.NewStorage(ctx, storage.StorageConfig{
		Type:      storage.StorageType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.Log.Infof("Storage initialized (%s)", cfg.Storage.Type)

	// Initialize repositories
	var (
		jobStore  service.JobStore
		fileStore service.FileStore
		users     handlers.UserLookup
	)
	if components.DB != nil {
		jobStore = repository.NewAnalysisJobRepository(components.DB)
		fileStore = repository.NewFileRepository(components.DB)
		if cfg.Server.BasicAuth {
			users = repository.NewUserRepository(components.DB)
		}
	} else {
		logger.Log.Warn("DATABASE_URL not set, jobs are kept in memory")
		jobStore = repository.NewMemoryJobRepository()
		fileStore = repository.NewMemoryFileRepository()
		if cfg.Server.BasicAuth {
			logger.Log.Warn("basic auth requires a database, disabled")
		}
	}

	jobService := service.NewJobService(
		service.JobWithStore(jobStore),
		service.JobWithFileStore(fileStore),
		service.JobWithStorage(fileStorage),
		service.JobWithRunner(components.Analysis),
		service.JobWithHistoryLimit(cfg.Analysis.HistoryLimit),
	)

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(jobService, cfg.Server.MaxUploadBytes, cfg.Server.JobTimeout)
	router := handlers.NewRouter(handlers.RouterConfig{
		Analysis:       analysisHandler,
		Files:          handlers.NewFileHandler(jobService),
		Health:         handlers.NewHealthHandler(components.Retriever, cfg.LLM.Provider),
		AnalyzeLimiter: rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
		Users:          users,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server shutdown failed: %v", err)
	}

	// running analyses finish before the clients close
	analysisHandler.Wait()
	logger.Log.Info("Server stopped")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/api/handlers"
	"github.com/krishnaenterprise/CYBER/internal/api/middleware"
	"github.com/krishnaenterprise/CYBER/internal/app"
	"github.com/krishnaenterprise/CYBER/internal/config"
	"github.com/krishnaenterprise/CYBER/internal/jobs/inmemory"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("FRAUD_CONFIG"), "Path to the TOML config file (or set FRAUD_CONFIG env)")
		port       = flag.Int("port", 0, "HTTP server port, overriding the config")
	)
	flag.Parse()

	cfg, log, err := app.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	ctx := logger.WithContext(context.Background(), log)

	repo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dataset repository")
	}
	defer repo.Close()

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	if storage == nil {
		log.Warn().Msg("No GCS bucket configured - datasets are processed within the request")
	} else {
		defer storage.Close()
	}

	syncer := app.NotionSyncer(cfg)
	pc, err := app.PipelineConfig(cfg, repo, storage, syncer)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pipeline configuration")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(app.QueueConfig(cfg), jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, pipeline.NewJobHandler(pc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	log.Info().Int("workers", cfg.Jobs.Workers).Strs("steps", pipeline.NewDatasetPipeline(pc).Steps()).Msg("Job worker started")

	deps := handlers.Deps{
		Repository:    repo,
		JobStore:      jobStore,
		Bucket:        cfg.GCS.Bucket,
		UploadPrefix:  cfg.GCS.UploadPrefix,
		JobMaxRetries: cfg.Jobs.MaxRetries,
		Limits:        app.Limits(cfg),
		PreviewRows:   cfg.Processing.PreviewRows,
		Log:           log,
	}
	if storage != nil {
		deps.Uploader = storage
		deps.Publisher = jobQueue
	}

	handler := middleware.Chain(handlers.NewRouter(deps),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.RequestID,
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Auth(cfg.Server.APIKey),
	)
	if cfg.Server.APIKey == "" {
		log.Warn().Msg("No API key configured - the API is open to anyone who can reach it")
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  config.ParseDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.ParseDuration(cfg.Server.WriteTimeout),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Storage.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ParseDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

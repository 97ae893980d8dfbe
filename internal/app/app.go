// Package app builds the configured collaborators shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/krishnaenterprise/CYBER/internal/config"
	"github.com/krishnaenterprise/CYBER/internal/gcsuploader"
	infraBQ "github.com/krishnaenterprise/CYBER/internal/infra/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/infra/sqlite"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/jobs/inmemory"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/notionsync"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/rs/zerolog"
)

// Load reads a .env file from the working directory when present, then the
// config at path, and builds the logger it describes.
func Load(path string) (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, logger.New(), err
	}
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, logger.New(), err
	}
	return cfg, log, nil
}

// OpenRepository opens the configured dataset store. The SQLite file and its
// directory are created on first use and migrated on open; BigQuery tables
// are created by the migrate command.
func OpenRepository(ctx context.Context, cfg *config.Config) (store.DatasetRepository, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("OpenRepository: creating %s: %w", dir, err)
			}
		}
		repo, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	case config.BackendBigQuery:
		repo, err := infraBQ.NewBigQueryDatasetRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("OpenRepository: unknown backend %q", cfg.Storage.Backend)
}

// OpenStorage returns a Cloud Storage client, or nil when no bucket is
// configured.
func OpenStorage(ctx context.Context, cfg *config.Config) (*gcsuploader.GCSStorageService, error) {
	if cfg.GCS.Bucket == "" {
		return nil, nil
	}
	return OpenStorageClient(ctx)
}

// OpenStorageClient returns a Cloud Storage client regardless of the bucket
// setting, for reading sources named by gs:// URI.
func OpenStorageClient(ctx context.Context) (*gcsuploader.GCSStorageService, error) {
	return gcsuploader.NewGCSStorageService(ctx)
}

// NotionSyncer returns the account exporter, or nil when Notion is not
// configured.
func NotionSyncer(cfg *config.Config) *notionsync.Syncer {
	if !cfg.Notion.Enabled() {
		return nil
	}
	client := notionsync.NewNotionClient(cfg.Notion.Token, cfg.Notion.MaxRetries)
	return notionsync.NewSyncer(client, cfg.Notion.DatabaseID, cfg.Notion.DryRun)
}

// Limits returns the upload limits.
func Limits(cfg *config.Config) ingest.Limits {
	return ingest.Limits{MaxFileSize: cfg.Processing.MaxFileSize()}
}

// QueueConfig sizes the in-process job queue.
func QueueConfig(cfg *config.Config) inmemory.QueueConfig {
	return inmemory.QueueConfig{
		BufferSize:   cfg.Jobs.BufferSize,
		Workers:      cfg.Jobs.Workers,
		RetryBackoff: config.ParseDuration(cfg.Jobs.RetryBackoff),
	}
}

// PipelineConfig assembles the dataset pipeline. storage and syncer may be
// nil, which drops the steps that need them.
func PipelineConfig(cfg *config.Config, repo store.DatasetRepository, storage *gcsuploader.GCSStorageService, syncer *notionsync.Syncer) (pipeline.Config, error) {
	formats, err := cfg.Processing.Formats()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("PipelineConfig: %w", err)
	}

	pc := pipeline.Config{
		Repository:    repo,
		ReportBucket:  cfg.GCS.Bucket,
		ReportPrefix:  cfg.GCS.ReportPrefix,
		ReportFormats: formats,
		Limits:        Limits(cfg),
		NotionTopN:    cfg.Notion.TopN,
	}
	// Typed nils must not reach the interface fields.
	if storage != nil {
		pc.Storage = storage
	}
	if syncer != nil {
		pc.Notion = syncer
	}
	return pc, nil
}

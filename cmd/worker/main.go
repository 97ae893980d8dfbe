package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/app"
	"github.com/krishnaenterprise/CYBER/internal/gcs"
	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/krishnaenterprise/CYBER/internal/jobs/inmemory"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
)

// pollInterval is how often job states are checked while waiting.
const pollInterval = 500 * time.Millisecond

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("FRAUD_CONFIG"), "Path to the TOML config file (or set FRAUD_CONFIG env)")
		description = flag.String("description", "", "Description stored with every dataset")
		reportDate  = flag.String("report-date", "", "Report date (YYYY-MM-DD) stored with every dataset")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: worker [options] gs://bucket/object.xlsx [gs://...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	uris := flag.Args()
	if len(uris) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, log, err := app.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

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
		// Sources are fetched from Cloud Storage even without a report bucket.
		storage, err = app.OpenStorageClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
	}
	defer storage.Close()

	pc, err := app.PipelineConfig(cfg, repo, storage, app.NotionSyncer(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pipeline configuration")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(app.QueueConfig(cfg), jobStore)
	if err := jobQueue.Start(ctx, pipeline.NewJobHandler(pc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("sources", len(uris)).Msg("Worker started")

	var ids []string
	for _, uri := range uris {
		if _, _, err := gcs.ParseURI(uri); err != nil {
			log.Error().Err(err).Str("source_uri", uri).Msg("Skipping invalid source")
			continue
		}
		job := &jobs.ProcessDatasetJob{
			Description: *description,
			ReportDate:  *reportDate,
			SourceURI:   uri,
			Filename:    gcs.ExtractFilename(uri),
			MaxRetries:  cfg.Jobs.MaxRetries,
		}
		if err := jobQueue.PublishProcessDataset(ctx, job); err != nil {
			log.Fatal().Err(err).Str("source_uri", uri).Msg("Failed to enqueue job")
		}
		ids = append(ids, job.JobID)
	}

	results := waitForJobs(ctx, jobStore, ids)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	failed := 0
	for _, j := range results {
		if j.Status != jobs.JobStatusCompleted || j.Result == nil {
			failed++
			fmt.Printf("FAILED   %s  %s\n", j.SourceURI, j.Error)
			continue
		}
		fmt.Printf("OK       %s  dataset=%s accounts=%d amount=%.2f\n",
			j.SourceURI, j.DatasetID, j.Result.AccountCount, j.Result.TotalAmount)
		for format, uri := range j.Result.ReportURIs {
			fmt.Printf("         %-5s %s\n", format, uri)
		}
	}

	log.Info().Int("completed", len(results)-failed).Int("failed", failed).Msg("Worker finished")
	if failed > 0 || len(results) < len(uris) {
		os.Exit(1)
	}
}

// waitForJobs polls until every job completed or failed, or ctx ends, and
// returns the final job states.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string) []*jobs.ProcessDatasetJob {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var (
			done    []*jobs.ProcessDatasetJob
			pending []string
		)
		for _, id := range ids {
			j, err := store.GetJob(ctx, id)
			if err != nil {
				continue
			}
			switch j.Status {
			case jobs.JobStatusCompleted, jobs.JobStatusFailed:
				done = append(done, j)
			default:
				pending = append(pending, j.JobID)
			}
		}
		if len(pending) == 0 {
			return done
		}

		select {
		case <-ctx.Done():
			log := logger.FromContext(ctx)
			log.Warn().Str("pending", strings.Join(pending, ",")).Msg("Interrupted while jobs were running")
			return done
		case <-ticker.C:
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/app"
	"github.com/krishnaenterprise/CYBER/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("FRAUD_CONFIG"), "Path to the TOML config file (or set FRAUD_CONFIG env)")
	datasetID := flag.String("dataset-id", "", "Dataset to export (required)")
	topN := flag.Int("top", 0, "Number of top-ranked accounts to export (default from config)")
	notionToken := flag.String("notion-token", "", "Notion API token, overriding the config")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID, overriding the config")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, log, err := app.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *datasetID == "" {
		log.Fatal().Msg("Error: --dataset-id is required")
	}
	if *notionToken != "" {
		cfg.Notion.Token = *notionToken
	}
	if *notionDBID != "" {
		cfg.Notion.DatabaseID = *notionDBID
	}
	if *dryRun {
		cfg.Notion.DryRun = true
	}
	if *topN <= 0 {
		*topN = cfg.Notion.TopN
	}

	syncer := app.NotionSyncer(cfg)
	if syncer == nil {
		log.Fatal().Msg("Error: a Notion token and database ID are required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dataset repository")
	}
	defer repo.Close()

	log.Info().
		Str("dataset_id", *datasetID).
		Int("top", *topN).
		Bool("dry_run", cfg.Notion.DryRun).
		Msg("Starting Notion sync")

	stats, err := syncer.SyncDataset(ctx, repo, *datasetID, *topN)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	verb := "Synced"
	if cfg.Notion.DryRun {
		verb = "Would sync"
	}
	fmt.Printf("%s dataset %s: %d created, %d updated, %d archived, %d failed\n",
		verb, *datasetID, stats.Created, stats.Updated, stats.Archived, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}

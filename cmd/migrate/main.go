package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/app"
	"github.com/krishnaenterprise/CYBER/internal/config"
	infraBQ "github.com/krishnaenterprise/CYBER/internal/infra/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/infra/sqlite"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/migrations"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("FRAUD_CONFIG"), "Path to the TOML config file (or set FRAUD_CONFIG env)")
		backend    = flag.String("backend", "", "Storage backend to migrate (sqlite or bigquery), overriding the config")
		appliedBy  = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		statusOnly = flag.Bool("status", false, "Only list applied and pending migrations")
	)
	flag.Parse()

	cfg, log, err := app.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		migrator     migrations.Migrator
		replacements map[string]string
		repoClose    func() error
	)
	switch cfg.Storage.Backend {
	case config.BackendBigQuery:
		repo, err := infraBQ.NewBigQueryDatasetRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		migrator, repoClose = repo.Migrator(), repo.Close
		replacements = map[string]string{
			migrations.ProjectPlaceholder: cfg.BigQuery.ProjectID,
			migrations.DatasetPlaceholder: cfg.BigQuery.DatasetID,
		}
		log.Info().Str("project", cfg.BigQuery.ProjectID).Str("dataset", cfg.BigQuery.DatasetID).Msg("Connected to BigQuery")
	case config.BackendSQLite:
		// Opening a SQLite store applies its migrations.
		repo, err := app.OpenRepository(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite database")
		}
		migrator, repoClose = repo.(*sqlite.SQLiteDatasetRepository).Migrator(), repo.Close
		log.Info().Str("path", cfg.SQLite.Path).Msg("Opened SQLite database")
	}
	defer repoClose()

	list, err := migrations.Load(cfg.Storage.Backend, replacements)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(list)).Msg("Found migrations")

	if !*statusOnly {
		n, err := migrations.Apply(ctx, migrator, list, *appliedBy)
		if err != nil {
			log.Fatal().Err(err).Int("applied", n).Msg("Migration failed")
		}
		if n == 0 {
			log.Info().Msg("No new migrations to apply. Database is up to date.")
		} else {
			log.Info().Int("applied", n).Msg("Applied migrations")
		}
	}

	if err := migrator.EnsureMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}
	applied, err := migrator.AppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read applied migrations")
	}
	printStatus(os.Stdout, list, applied)
}

// printStatus writes one line per known migration with its state.
func printStatus(w io.Writer, list []migrations.Migration, applied []migrations.AppliedMigration) {
	byVersion := make(map[int]migrations.AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT\tAPPLIED BY")
	for _, m := range list {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			fmt.Fprintf(tw, "%04d\t%s\tpending\t\t\n", m.Version, m.Name)
		case am.Checksum != "" && am.Checksum != m.Checksum:
			fmt.Fprintf(tw, "%04d\t%s\tchanged\t%s\t%s\n", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339), am.AppliedBy)
		default:
			fmt.Fprintf(tw, "%04d\t%s\tapplied\t%s\t%s\n", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339), am.AppliedBy)
		}
	}
	tw.Flush()
}

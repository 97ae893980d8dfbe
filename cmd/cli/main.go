package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/krishnaenterprise/CYBER/internal/app"
	"github.com/krishnaenterprise/CYBER/internal/columns"
	"github.com/krishnaenterprise/CYBER/internal/config"
	"github.com/krishnaenterprise/CYBER/internal/dashboard"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/gcs"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "analyze", "detect", "upload", "datasets", "show", "verify", "delete", "search":
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("FRAUD_CONFIG"), "Path to the TOML config file (or set FRAUD_CONFIG env)")
	run := register(cmd, fs)
	fs.Parse(args)

	cfg, log, err := app.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func printUsage() {
	fmt.Println("Fraud Analysis CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Process a spreadsheet and write reports")
	fmt.Println("  detect    Show the column mapping detected for a spreadsheet")
	fmt.Println("  upload    Upload a spreadsheet to GCS")
	fmt.Println("  datasets  List stored datasets")
	fmt.Println("  show      Show a stored dataset and its top accounts")
	fmt.Println("  verify    Check a stored dataset against its checksum")
	fmt.Println("  delete    Delete a stored dataset")
	fmt.Println("  search    Find accounts by number across datasets")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

type runFunc func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error

// register declares the flags of cmd on fs and returns its runner.
func register(cmd string, fs *flag.FlagSet) runFunc {
	switch cmd {
	case "analyze":
		file := fs.String("file", "", "Path to the spreadsheet (required)")
		outDir := fs.String("out", ".", "Directory for the reports")
		formats := fs.String("formats", "csv,xlsx,pdf,txt", "Comma-separated report formats")
		mapping := fs.String("mapping", "", "Column overrides as field=header pairs, comma-separated")
		save := fs.Bool("save", false, "Store the dataset in the configured backend")
		name := fs.String("name", "", "Dataset name when saving (defaults to the filename)")
		reportDate := fs.String("report-date", "", "Report date (YYYY-MM-DD) when saving")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return runAnalyze(ctx, cfg, analyzeOptions{
				File: *file, OutDir: *outDir, Formats: *formats, Mapping: *mapping,
				Save: *save, Name: *name, ReportDate: *reportDate,
			})
		}
	case "detect":
		file := fs.String("file", "", "Path to the spreadsheet (required)")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return runDetect(cfg, *file)
		}
	case "upload":
		file := fs.String("file", "", "Path to the spreadsheet (required)")
		bucket := fs.String("bucket", "", "GCS bucket (defaults to gcs.bucket)")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return runUpload(ctx, cfg, log, *file, *bucket)
		}
	case "datasets":
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return withRepo(ctx, cfg, runDatasets)
		}
	case "show":
		id := fs.String("dataset-id", "", "Dataset ID (required)")
		top := fs.Int("top", dashboard.DefaultTopN, "Number of accounts to list")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return withRepo(ctx, cfg, func(ctx context.Context, repo store.DatasetRepository) error {
				return runShow(ctx, repo, *id, *top)
			})
		}
	case "verify":
		id := fs.String("dataset-id", "", "Dataset ID (required)")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return withRepo(ctx, cfg, func(ctx context.Context, repo store.DatasetRepository) error {
				return runVerify(ctx, repo, *id)
			})
		}
	case "delete":
		id := fs.String("dataset-id", "", "Dataset ID (required)")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return withRepo(ctx, cfg, func(ctx context.Context, repo store.DatasetRepository) error {
				if *id == "" {
					return fmt.Errorf("--dataset-id is required")
				}
				if err := repo.DeleteDataset(ctx, *id); err != nil {
					return err
				}
				fmt.Printf("Deleted dataset %s\n", *id)
				return nil
			})
		}
	case "search":
		q := fs.String("q", "", "Account number or part of one (required)")
		limit := fs.Int("limit", store.DefaultSearchLimit, "Maximum results")
		return func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
			return withRepo(ctx, cfg, func(ctx context.Context, repo store.DatasetRepository) error {
				return runSearch(ctx, repo, *q, *limit)
			})
		}
	}
	return nil
}

func withRepo(ctx context.Context, cfg *config.Config, fn func(context.Context, store.DatasetRepository) error) error {
	repo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, repo)
}

type analyzeOptions struct {
	File       string
	OutDir     string
	Formats    string
	Mapping    string
	Save       bool
	Name       string
	ReportDate string
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts analyzeOptions) error {
	if opts.File == "" {
		return fmt.Errorf("--file is required")
	}
	formats, err := parseFormats(opts.Formats)
	if err != nil {
		return err
	}
	raw, err := parseMappingFlag(opts.Mapping)
	if err != nil {
		return err
	}
	overrides, err := pipeline.ParseOverrides(raw)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.File, err)
	}

	state := pipeline.NewState()
	state.Filename = filepath.Base(opts.File)
	state.Data = data
	state.DatasetName = opts.Name
	state.Overrides = overrides
	if opts.ReportDate != "" {
		if state.ReportDate, err = civil.ParseDate(opts.ReportDate); err != nil {
			return fmt.Errorf("invalid --report-date: %w", err)
		}
	}

	pc := pipeline.Config{Limits: app.Limits(cfg)}
	if opts.Save {
		repo, err := app.OpenRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()
		pc.Repository = repo
	}

	if err := pipeline.NewDatasetPipeline(pc).Execute(ctx, state); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", opts.OutDir, err)
	}
	d := state.ReportData()
	for _, f := range formats {
		path := filepath.Join(opts.OutDir, report.Filename(state.Filename, f))
		if err := writeReportFile(path, f, d); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}

	printSummary(state.Stats, state.Accounts, dashboard.DefaultTopN)
	if state.Dataset != nil {
		fmt.Printf("\nSaved as dataset %s\n", state.Dataset.DatasetID)
	}
	return nil
}

func writeReportFile(path string, f report.Format, d report.Data) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := report.Render(out, f, d); err != nil {
		out.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return out.Close()
}

func runDetect(cfg *config.Config, file string) error {
	if file == "" {
		return fmt.Errorf("--file is required")
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	t, err := ingest.ReadTable(f, filepath.Base(file), app.Limits(cfg))
	if err != nil {
		return err
	}
	m := columns.Resolve(t.Columns)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tHEADER\tCONFIDENCE\tREQUIRED")
	for _, field := range domain.AllFields() {
		header, ok := m.Header(field)
		if !ok {
			header = "-"
		}
		conf := ""
		if ok {
			conf = fmt.Sprintf("%.2f", m.ConfidenceScores[field])
		}
		req := ""
		if field.Required() {
			req = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", field, header, conf, req)
	}
	tw.Flush()

	for header, fields := range m.AmbiguousMappings {
		fmt.Printf("\nAmbiguous: %q matched %v\n", header, fields)
	}
	for _, header := range columns.UnmappedHeaders(t.Columns, m) {
		fmt.Printf("\nUnmapped: %q", header)
		for _, s := range columns.Suggestions(header, 3) {
			fmt.Printf("  %s (%.2f)", s.Field, s.Score)
		}
	}
	fmt.Println()
	return nil
}

func runUpload(ctx context.Context, cfg *config.Config, log zerolog.Logger, file, bucket string) error {
	if file == "" {
		return fmt.Errorf("--file is required")
	}
	if bucket == "" {
		bucket = cfg.GCS.Bucket
	}
	if bucket == "" {
		return fmt.Errorf("--bucket or gcs.bucket is required")
	}

	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if _, err := ingest.Validate(filepath.Base(file), info.Size(), app.Limits(cfg)); err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	storage, err := app.OpenStorageClient(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	object := gcs.ObjectName(cfg.GCS.UploadPrefix, uuid.NewString(), filepath.Base(file), time.Now())
	log.Info().Str("bucket", bucket).Str("object", object).Msg("Uploading file to GCS")
	if err := storage.UploadBytes(ctx, bucket, object, "application/octet-stream", data); err != nil {
		return err
	}

	fmt.Printf("Uploaded %s to %s\n", file, gcs.URI(bucket, object))
	return nil
}

func runDatasets(ctx context.Context, repo store.DatasetRepository) error {
	datasets, err := repo.ListDatasets(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREPORT DATE\tACCOUNTS\tTRANSACTIONS\tTOTAL AMOUNT\tCREATED")
	for _, ds := range datasets {
		date := "-"
		if ds.ReportDate.Valid {
			date = ds.ReportDate.Date.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\n",
			ds.DatasetID, ds.Name, date, ds.AccountCount, ds.TotalTransactions, ds.TotalAmount,
			ds.CreatedTS.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runShow(ctx context.Context, repo store.DatasetRepository, id string, top int) error {
	if id == "" {
		return fmt.Errorf("--dataset-id is required")
	}
	ds, err := repo.GetDataset(ctx, id)
	if err != nil {
		return err
	}
	rows, err := repo.LoadAccounts(ctx, id, store.AccountQuery{Limit: top})
	if err != nil {
		return err
	}

	fmt.Println("\n=== Dataset Details ===")
	fmt.Printf("ID:           %s\n", ds.DatasetID)
	fmt.Printf("Name:         %s\n", ds.Name)
	fmt.Printf("Source:       %s\n", ds.SourceFilename)
	if ds.SourceURI != "" {
		fmt.Printf("Source URI:   %s\n", ds.SourceURI)
	}
	fmt.Printf("Created:      %s\n", ds.CreatedTS.Format(time.RFC3339))
	fmt.Printf("Checksum:     %s\n", ds.ChecksumSHA256)

	printSummary(domain.ProcessingStats{
		UniqueAccounts:      int(ds.AccountCount),
		TotalTransactions:   int(ds.TotalTransactions),
		TotalAmount:         ds.TotalAmount,
		TotalDisputedAmount: ds.TotalDisputedAmount,
	}, store.Accounts(rows), top)
	return nil
}

func runVerify(ctx context.Context, repo store.DatasetRepository, id string) error {
	if id == "" {
		return fmt.Errorf("--dataset-id is required")
	}
	v, err := store.Verify(ctx, repo, id)
	if err != nil {
		return err
	}
	fmt.Printf("Accounts: expected %d, found %d\n", v.ExpectedCount, v.ActualCount)
	fmt.Printf("Checksum: expected %s\n          found    %s\n", v.ExpectedChecksum, v.ActualChecksum)
	if !v.Valid {
		return fmt.Errorf("dataset %s failed verification", id)
	}
	fmt.Println("Dataset is intact.")
	return nil
}

func runSearch(ctx context.Context, repo store.DatasetRepository, q string, limit int) error {
	if q = strings.TrimSpace(q); q == "" {
		return fmt.Errorf("--q is required")
	}
	rows, err := repo.SearchAccounts(ctx, q, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tACCOUNT\tBANK\tTRANSACTIONS\tAMOUNT\tRISK")
	for _, r := range rows {
		a := r.Account()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n", r.DatasetID, a.AccountNumber, a.BankName, a.TotalTransactions, a.TotalAmount, a.RiskScore)
	}
	return tw.Flush()
}

func printSummary(stats domain.ProcessingStats, accounts []domain.AggregatedAccount, top int) {
	fmt.Println("\n=== Summary ===")
	fmt.Printf("Unique accounts:     %d\n", stats.UniqueAccounts)
	fmt.Printf("Transactions:        %d\n", stats.TotalTransactions)
	fmt.Printf("Total amount:        %.2f\n", stats.TotalAmount)
	fmt.Printf("Total disputed:      %.2f\n", stats.TotalDisputedAmount)
	if stats.RowsWithoutAccount > 0 {
		fmt.Printf("Rows without account: %d\n", stats.RowsWithoutAccount)
	}

	if top > len(accounts) || top <= 0 {
		top = len(accounts)
	}
	fmt.Printf("\n=== Top %d Accounts ===\n", top)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tACCOUNT\tBANK\tTRANSACTIONS\tAMOUNT\tRISK")
	for i, a := range accounts[:top] {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\n", i+1, a.AccountNumber, a.BankName, a.TotalTransactions, a.TotalAmount, a.RiskScore)
	}
	tw.Flush()
}

// parseFormats parses a comma-separated list of report formats.
func parseFormats(s string) ([]report.Format, error) {
	var out []report.Format
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := report.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// parseMappingFlag parses "field=header,field=header". An empty header
// unassigns the field.
func parseMappingFlag(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		field, header, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q, expected field=header", pair)
		}
		out[strings.TrimSpace(field)] = strings.TrimSpace(header)
	}
	return out, nil
}

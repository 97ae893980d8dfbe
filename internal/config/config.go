// Package config loads service settings from a TOML file with environment
// overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

type ServerConfig struct {
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	ReadTimeout     string   `toml:"read_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type BigQueryConfig struct {
	ProjectID string `toml:"project_id"`
	DatasetID string `toml:"dataset_id"`
}

type GCSConfig struct {
	Bucket       string `toml:"bucket"`
	UploadPrefix string `toml:"upload_prefix"`
	ReportPrefix string `toml:"report_prefix"`
}

type NotionConfig struct {
	Token      string `toml:"token"`
	DatabaseID string `toml:"database_id"`
	TopN       int    `toml:"top_n"`
	DryRun     bool   `toml:"dry_run"`
	MaxRetries int    `toml:"max_retries"`
}

// Enabled reports whether both credentials are present.
func (n NotionConfig) Enabled() bool {
	return n.Token != "" && n.DatabaseID != ""
}

type ProcessingConfig struct {
	MaxFileSizeMB int      `toml:"max_file_size_mb"`
	ReportFormats []string `toml:"report_formats"`
	PreviewRows   int      `toml:"preview_rows"`
}

// MaxFileSize is the upload limit in bytes.
func (p ProcessingConfig) MaxFileSize() int64 {
	return int64(p.MaxFileSizeMB) << 20
}

// Formats parses ReportFormats.
func (p ProcessingConfig) Formats() ([]report.Format, error) {
	out := make([]report.Format, 0, len(p.ReportFormats))
	for _, s := range p.ReportFormats {
		f, err := report.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

type JobsConfig struct {
	Workers      int    `toml:"workers"`
	BufferSize   int    `toml:"buffer_size"`
	MaxRetries   int    `toml:"max_retries"`
	RetryBackoff string `toml:"retry_backoff"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Storage    StorageConfig    `toml:"storage"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	BigQuery   BigQueryConfig   `toml:"bigquery"`
	GCS        GCSConfig        `toml:"gcs"`
	Notion     NotionConfig     `toml:"notion"`
	Processing ProcessingConfig `toml:"processing"`
	Jobs       JobsConfig       `toml:"jobs"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     "30s",
			WriteTimeout:    "5m",
			ShutdownTimeout: "15s",
		},
		Log:      LogConfig{Level: "info", Format: "console"},
		Storage:  StorageConfig{Backend: BackendSQLite},
		SQLite:   SQLiteConfig{Path: "data/fraud_analysis.db"},
		BigQuery: BigQueryConfig{DatasetID: "fraud_analysis"},
		GCS:      GCSConfig{UploadPrefix: "uploads", ReportPrefix: "reports"},
		Notion:   NotionConfig{TopN: 50, MaxRetries: 3},
		Processing: ProcessingConfig{
			MaxFileSizeMB: 200,
			ReportFormats: []string{"csv", "xlsx", "pdf", "txt"},
			PreviewRows:   10,
		},
		Jobs: JobsConfig{Workers: 2, BufferSize: 100, MaxRetries: 3, RetryBackoff: "5s"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := Decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses TOML into cfg. Keys missing from data keep their current
// value; unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"API_KEY":              &c.Server.APIKey,
		"LOG_LEVEL":            &c.Log.Level,
		"LOG_FORMAT":           &c.Log.Format,
		"STORAGE_BACKEND":      &c.Storage.Backend,
		"SQLITE_PATH":          &c.SQLite.Path,
		"GOOGLE_CLOUD_PROJECT": &c.BigQuery.ProjectID,
		"BQ_DATASET":           &c.BigQuery.DatasetID,
		"GCS_BUCKET":           &c.GCS.Bucket,
		"NOTION_TOKEN":         &c.Notion.Token,
		"NOTION_DATABASE_ID":   &c.Notion.DatabaseID,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	for name, v := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"jobs.retry_backoff":      c.Jobs.RetryBackoff,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			problems = append(problems, "sqlite.path is required for the sqlite backend")
		}
	case BackendBigQuery:
		if c.BigQuery.ProjectID == "" {
			problems = append(problems, "bigquery.project_id is required for the bigquery backend")
		}
		if c.BigQuery.DatasetID == "" {
			problems = append(problems, "bigquery.dataset_id is required for the bigquery backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q must be sqlite or bigquery", c.Storage.Backend))
	}

	if c.Processing.MaxFileSizeMB <= 0 {
		problems = append(problems, "processing.max_file_size_mb must be positive")
	}
	if _, err := c.Processing.Formats(); err != nil {
		problems = append(problems, fmt.Sprintf("processing.report_formats: %v", err))
	}
	if c.Jobs.Workers <= 0 {
		problems = append(problems, "jobs.workers must be positive")
	}
	if c.Notion.Token != "" && c.Notion.DatabaseID == "" {
		problems = append(problems, "notion.database_id is required when notion.token is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseDuration parses a duration that Validate has already accepted.
func ParseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

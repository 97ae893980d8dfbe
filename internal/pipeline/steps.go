package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/aggregation"
	"github.com/krishnaenterprise/CYBER/internal/cleaning"
	"github.com/krishnaenterprise/CYBER/internal/columns"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/gcs"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/krishnaenterprise/CYBER/internal/validation"
)

// ErrInvalidOverride is returned when a user mapping override cannot be
// applied to the uploaded headers.
var ErrInvalidOverride = errors.New("invalid column override")

// PipelineStep represents a single step in the processing pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// FetchSourceStep downloads the upload from object storage. It does nothing
// when the bytes are already in the state.
type FetchSourceStep struct {
	Storage StorageService
}

func (s *FetchSourceStep) Name() string { return "fetch_source" }

func (s *FetchSourceStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Data != nil {
		return nil
	}
	if state.SourceURI == "" {
		return fmt.Errorf("FetchSourceStep: no source URI or data")
	}
	data, err := s.Storage.FetchFromGCS(ctx, state.SourceURI)
	if err != nil {
		return fmt.Errorf("FetchSourceStep: %w", err)
	}
	state.Data = data
	if state.Filename == "" {
		state.Filename = s.Storage.ExtractFilenameFromGCSURI(state.SourceURI)
	}
	state.Audit.Record(s.Name(), "Fetched %d bytes from %s", len(data), state.SourceURI)
	return nil
}

// ReadTableStep validates the upload and parses it into a table.
type ReadTableStep struct {
	Limits ingest.Limits
}

func (s *ReadTableStep) Name() string { return "read_table" }

func (s *ReadTableStep) Execute(ctx context.Context, state *PipelineState) error {
	format, err := ingest.Validate(state.Filename, int64(len(state.Data)), s.Limits)
	if err != nil {
		return err
	}
	t, err := ingest.ReadBytes(state.Data, format)
	if err != nil {
		return err
	}
	state.Table = t
	state.Stats.InputRows = t.Len()

	log := logger.FromContext(ctx)
	log.Info().
		Str("filename", state.Filename).
		Int("rows", t.Len()).
		Int("columns", len(t.Columns)).
		Msg("Read upload")
	state.Audit.Record(s.Name(), "Read %d rows and %d columns from %s", t.Len(), len(t.Columns), state.Filename)
	return nil
}

// ResolveColumnsStep maps the headers onto canonical fields and applies any
// user overrides.
type ResolveColumnsStep struct{}

func (s *ResolveColumnsStep) Name() string { return "resolve_columns" }

func (s *ResolveColumnsStep) Execute(ctx context.Context, state *PipelineState) error {
	m := columns.NewResolver(logger.FromContext(ctx)).Resolve(state.Table.Columns)
	if len(state.Overrides) > 0 {
		for f, header := range state.Overrides {
			if header != "" && state.Table.ColumnIndex(header) < 0 {
				return fmt.Errorf("ResolveColumnsStep: %w: %s -> %q is not a column", ErrInvalidOverride, f, header)
			}
		}
		overridden, err := m.ApplyOverrides(state.Overrides)
		if err != nil {
			return fmt.Errorf("ResolveColumnsStep: %w: %v", ErrInvalidOverride, err)
		}
		m = overridden
		state.Audit.Record(s.Name(), "Applied %d column override(s)", len(state.Overrides))
	}
	state.Mapping = m

	var parts []string
	for _, f := range m.Assigned() {
		h, _ := m.Header(f)
		parts = append(parts, fmt.Sprintf("%s=%q (%.2f)", f, h, m.ConfidenceScores[f]))
	}
	state.Audit.Record(s.Name(), "Mapped %d of %d fields: %s", len(parts), len(domain.AllFields()), strings.Join(parts, ", "))
	for _, header := range state.Table.Columns {
		if fields, ok := m.AmbiguousMappings[header]; ok {
			state.Audit.Record(s.Name(), "Column %q matches several fields: %v", header, fields)
		}
	}
	return nil
}

// CheckRequiredStep stops the run when a required field is unmapped.
type CheckRequiredStep struct{}

func (s *CheckRequiredStep) Name() string { return "check_required" }

func (s *CheckRequiredStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := validation.RequireColumns(state.Mapping, state.Table.Columns); err != nil {
		return err
	}
	return nil
}

// CleanStep normalizes cell values.
type CleanStep struct{}

func (s *CleanStep) Name() string { return "clean" }

func (s *CleanStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Cleaned = cleaning.Clean(state.Table, state.Mapping)
	state.Stats.CleanedRows = state.Cleaned.Len()

	if dropped := state.Table.Len() - state.Cleaned.Len(); dropped > 0 {
		state.Audit.Record(s.Name(), "Dropped %d empty row(s)", dropped)
	}
	state.Audit.Record(s.Name(), "Cleaned %d rows", state.Cleaned.Len())
	return nil
}

// AssessQualityStep measures row-level data quality. Its findings are
// warnings and never stop the run.
type AssessQualityStep struct{}

func (s *AssessQualityStep) Name() string { return "assess_quality" }

func (s *AssessQualityStep) Execute(ctx context.Context, state *PipelineState) error {
	q := validation.Assess(state.Cleaned, state.Mapping)
	state.Quality = &q

	log := logger.FromContext(ctx)
	for _, w := range q.Warnings {
		log.Warn().Str("code", string(w.Code)).Msg(w.Message)
	}
	state.Audit.Record(s.Name(), "Completeness %.2f%%, %d warning(s)", q.CompletenessRate, len(q.Warnings))
	return nil
}

// AggregateStep groups rows by account, ranks the accounts and fills in the
// processing statistics.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Accounts = aggregation.Run(state.Cleaned, state.Mapping)

	st := &state.Stats
	st.UniqueAccounts = len(state.Accounts)
	st.TotalTransactions = 0
	st.TotalAmount = 0
	st.TotalDisputedAmount = 0
	for _, a := range state.Accounts {
		st.TotalTransactions += a.TotalTransactions
		st.TotalAmount += a.TotalAmount
		st.TotalDisputedAmount += a.TotalDisputedAmount
	}
	st.RowsWithoutAccount = state.Cleaned.Len() - st.TotalTransactions

	log := logger.FromContext(ctx)
	log.Info().
		Int("accounts", st.UniqueAccounts).
		Int("transactions", st.TotalTransactions).
		Float64("total_amount", st.TotalAmount).
		Msg("Aggregated accounts")
	state.Audit.Record(s.Name(), "Aggregated %d transactions into %d accounts", st.TotalTransactions, st.UniqueAccounts)
	if st.RowsWithoutAccount > 0 {
		state.Audit.Record(s.Name(), "Skipped %d row(s) without an account number", st.RowsWithoutAccount)
	}
	return nil
}

// PersistStep saves the ranked accounts as a dataset.
type PersistStep struct {
	Repository store.DatasetRepository
}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	name := state.DatasetName
	if name == "" {
		name = strings.TrimSuffix(state.Filename, path.Ext(state.Filename))
	}
	ds := store.NewDatasetRow(name, state.Description, state.ReportDate, state.Accounts)
	ds.DatasetID = state.ensureDatasetID()
	ds.SourceFilename = state.Filename
	ds.SourceURI = state.SourceURI

	if err := s.Repository.SaveDataset(ctx, ds, state.Accounts); err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	state.Dataset = ds
	state.Audit.Record(s.Name(), "Saved dataset %s with %d accounts (checksum %s)", ds.DatasetID, ds.AccountCount, ds.ChecksumSHA256)
	return nil
}

// PublishReportsStep renders the reports and uploads them next to each other
// under <prefix>/<dataset id>/.
type PublishReportsStep struct {
	Storage StorageService
	Bucket  string
	Prefix  string
	Formats []report.Format
}

func (s *PublishReportsStep) Name() string { return "publish_reports" }

func (s *PublishReportsStep) Execute(ctx context.Context, state *PipelineState) error {
	id := state.ensureDatasetID()
	data := state.ReportData()

	for _, f := range s.Formats {
		var buf bytes.Buffer
		if err := report.Render(&buf, f, data); err != nil {
			return fmt.Errorf("PublishReportsStep: rendering %s: %w", f, err)
		}
		object := path.Join(s.Prefix, id, report.Filename(state.Filename, f))
		if err := s.Storage.UploadBytes(ctx, s.Bucket, object, report.ContentType(f), buf.Bytes()); err != nil {
			return fmt.Errorf("PublishReportsStep: uploading %s: %w", f, err)
		}
		state.ReportURIs[f] = gcs.URI(s.Bucket, object)
	}
	state.Audit.Record(s.Name(), "Published %d report(s)", len(s.Formats))
	return nil
}

// SyncNotionStep exports the top accounts to Notion.
type SyncNotionStep struct {
	Syncer NotionSyncer
	TopN   int
}

func (s *SyncNotionStep) Name() string { return "sync_notion" }

func (s *SyncNotionStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts := state.Accounts
	if s.TopN > 0 && len(accounts) > s.TopN {
		accounts = accounts[:s.TopN]
	}
	n, err := s.Syncer.SyncAccounts(ctx, state.ensureDatasetID(), accounts)
	if err != nil {
		return fmt.Errorf("SyncNotionStep: %w", err)
	}
	state.Synced = n
	state.Audit.Record(s.Name(), "Synced %d account(s) to Notion", n)
	return nil
}

// Package pipeline runs an uploaded fraud spreadsheet through column
// resolution, cleaning, aggregation and the optional persistence, reporting
// and export steps.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
)

// DefaultReportPrefix is where published reports live in the bucket.
const DefaultReportPrefix = "reports"

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all pipeline steps in sequence and stops at the first
// failure. The failure is recorded on the audit trail as well as returned.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	if state.Audit == nil {
		state.Audit = report.NewAuditTrail()
	}
	if state.ReportURIs == nil {
		state.ReportURIs = make(map[report.Format]string)
	}
	state.started = time.Now()

	for i, step := range p.steps {
		log.Debug().Str("step", step.Name()).Msg("Running pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			state.Audit.RecordError(step.Name(), err)
			state.Stats.Duration = time.Since(state.started)
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}

	state.Stats.Duration = time.Since(state.started)
	log.Info().
		Dur("duration", state.Stats.Duration).
		Int("accounts", state.Stats.UniqueAccounts).
		Msg("Pipeline completed")
	return nil
}

// Config lists the collaborators of a full dataset run. Nil or empty
// entries switch the matching optional step off.
type Config struct {
	Storage    StorageService
	Repository store.DatasetRepository
	Notion     NotionSyncer
	NotionTopN int

	ReportBucket  string
	ReportPrefix  string
	ReportFormats []report.Format

	Limits ingest.Limits
}

// AnalysisSteps are the pure stages from a parsed table to ranked accounts.
func AnalysisSteps() []PipelineStep {
	return []PipelineStep{
		&ResolveColumnsStep{},
		&CheckRequiredStep{},
		&CleanStep{},
		&AssessQualityStep{},
		&AggregateStep{},
	}
}

// NewDatasetPipeline builds the pipeline for a stored upload.
func NewDatasetPipeline(cfg Config) *Pipeline {
	limits := cfg.Limits
	if limits.MaxFileSize <= 0 {
		limits = ingest.DefaultLimits()
	}

	var steps []PipelineStep
	if cfg.Storage != nil {
		steps = append(steps, &FetchSourceStep{Storage: cfg.Storage})
	}
	steps = append(steps, &ReadTableStep{Limits: limits})
	steps = append(steps, AnalysisSteps()...)

	if cfg.Repository != nil {
		steps = append(steps, &PersistStep{Repository: cfg.Repository})
	}
	if cfg.Storage != nil && cfg.ReportBucket != "" && len(cfg.ReportFormats) > 0 {
		prefix := cfg.ReportPrefix
		if prefix == "" {
			prefix = DefaultReportPrefix
		}
		steps = append(steps, &PublishReportsStep{
			Storage: cfg.Storage,
			Bucket:  cfg.ReportBucket,
			Prefix:  prefix,
			Formats: cfg.ReportFormats,
		})
	}
	if cfg.Notion != nil {
		steps = append(steps, &SyncNotionStep{Syncer: cfg.Notion, TopN: cfg.NotionTopN})
	}
	return NewPipeline(steps...)
}

// Analyze resolves, cleans and aggregates a table in memory.
func Analyze(ctx context.Context, t *domain.Table, overrides map[domain.CanonicalField]string) (*PipelineState, error) {
	state := NewState()
	state.Table = t
	state.Overrides = overrides
	state.Stats.InputRows = t.Len()

	if err := NewPipeline(AnalysisSteps()...).Execute(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// ParseOverrides converts a field name to header map, as sent by clients,
// into typed overrides.
func ParseOverrides(raw map[string]string) (map[domain.CanonicalField]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[domain.CanonicalField]string, len(raw))
	for name, header := range raw {
		f, ok := domain.ParseCanonicalField(name)
		if !ok {
			return nil, fmt.Errorf("ParseOverrides: unknown field %q", name)
		}
		out[f] = header
	}
	return out, nil
}

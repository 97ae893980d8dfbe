package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/validation"
)

// NewJobHandler returns a handler that runs the dataset pipeline for each
// ProcessDatasetJob. Failures that a retry cannot fix are marked permanent.
func NewJobHandler(cfg Config) jobs.JobHandler {
	p := NewDatasetPipeline(cfg)

	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ProcessDatasetJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unsupported job type %q", job.GetType()))
		}

		state, err := stateForJob(j)
		if err != nil {
			return jobs.Permanent(err)
		}

		log := logger.FromContext(ctx)
		log.Info().
			Str("source_uri", j.SourceURI).
			Strs("steps", p.Steps()).
			Msg("Processing dataset")

		if err := p.Execute(ctx, state); err != nil {
			if isInputError(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		result := &jobs.JobResult{
			AccountCount:      state.Stats.UniqueAccounts,
			TotalTransactions: state.Stats.TotalTransactions,
			TotalAmount:       state.Stats.TotalAmount,
		}
		if state.Quality != nil {
			result.Warnings = len(state.Quality.Warnings)
		}
		if len(state.ReportURIs) > 0 {
			result.ReportURIs = make(map[string]string, len(state.ReportURIs))
			for f, uri := range state.ReportURIs {
				result.ReportURIs[string(f)] = uri
			}
		}
		j.Result = result
		return nil
	}
}

func stateForJob(j *jobs.ProcessDatasetJob) (*PipelineState, error) {
	overrides, err := ParseOverrides(j.Overrides)
	if err != nil {
		return nil, err
	}

	state := NewState()
	state.SourceURI = j.SourceURI
	state.Filename = j.Filename
	state.DatasetID = j.DatasetID
	state.DatasetName = j.DatasetName
	state.Description = j.Description
	state.Overrides = overrides

	if j.ReportDate != "" {
		d, err := civil.ParseDate(j.ReportDate)
		if err != nil {
			return nil, fmt.Errorf("invalid report date %q: %w", j.ReportDate, err)
		}
		state.ReportDate = d
	}
	return state, nil
}

// isInputError reports whether err comes from the upload itself rather than
// from a collaborator.
func isInputError(err error) bool {
	var missing *validation.MissingColumnsError
	return errors.As(err, &missing) ||
		errors.Is(err, ErrInvalidOverride) ||
		errors.Is(err, ingest.ErrUnsupportedFormat) ||
		errors.Is(err, ingest.ErrFileTooLarge) ||
		errors.Is(err, ingest.ErrEmptyFile) ||
		errors.Is(err, ingest.ErrCorruptedFile)
}

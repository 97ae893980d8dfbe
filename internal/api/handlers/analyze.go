package handlers

import (
	"net/http"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/api/middleware"
	"github.com/krishnaenterprise/CYBER/internal/dashboard"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/validation"
	"github.com/rs/zerolog"
)

// AnalyzeHandler processes an upload synchronously without storing it.
type AnalyzeHandler struct {
	limits ingest.Limits
	log    zerolog.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(limits ingest.Limits, log zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{limits: limits, log: log}
}

// AnalyzeResponse is the JSON result of an analysis.
type AnalyzeResponse struct {
	Filename   string                     `json:"filename"`
	Mapping    *domain.ColumnMapping      `json:"mapping"`
	Stats      domain.ProcessingStats     `json:"stats"`
	Quality    *validation.QualityReport  `json:"quality"`
	Statistics dashboard.Statistics       `json:"statistics"`
	Accounts   []domain.AggregatedAccount `json:"accounts"`
	Audit      []report.AuditEntry        `json:"audit"`
}

// Analyze handles POST /api/analyze?format=json|csv|xlsx|pdf|txt
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := r.URL.Query().Get("format")
	var out report.Format
	if format != "" && format != "json" {
		f, err := report.ParseFormat(format)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		out = f
	}

	up, err := readUpload(w, r, h.limits)
	if err != nil {
		writeInputError(w, err)
		return
	}
	raw, err := parseMapping(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	overrides, err := pipeline.ParseOverrides(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := ingest.ReadBytes(up.Data, up.Format)
	if err != nil {
		writeInputError(w, err)
		return
	}

	start := time.Now()
	state, err := pipeline.Analyze(ctx, t, overrides)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", up.Filename).Msg("Analysis rejected")
		writeInputError(w, err)
		return
	}
	state.Filename = up.Filename

	h.log.Info().
		Str("filename", up.Filename).
		Int("rows", state.Stats.InputRows).
		Int("accounts", state.Stats.UniqueAccounts).
		Dur("duration", time.Since(start)).
		Msg("Analysis completed")

	if out != "" {
		if err := writeReport(w, out, state.ReportData()); err != nil {
			h.log.Error().Err(err).Str("format", string(out)).Msg("Failed to render report")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to render report")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, AnalyzeResponse{
		Filename:   up.Filename,
		Mapping:    state.Mapping,
		Stats:      state.Stats,
		Quality:    state.Quality,
		Statistics: dashboard.ComputeStatistics(state.Accounts, dashboard.DefaultTopN),
		Accounts:   state.Accounts,
		Audit:      state.Audit.Entries(),
	})
}

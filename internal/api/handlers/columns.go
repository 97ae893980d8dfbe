package handlers

import (
	"net/http"

	"github.com/krishnaenterprise/CYBER/internal/api/middleware"
	"github.com/krishnaenterprise/CYBER/internal/columns"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/validation"
	"github.com/rs/zerolog"
)

// suggestionsPerHeader is how many candidate fields are offered for an
// unmapped header.
const suggestionsPerHeader = 3

// ColumnsHandler previews an upload and its detected column mapping.
type ColumnsHandler struct {
	limits      ingest.Limits
	previewRows int
	log         zerolog.Logger
}

// NewColumnsHandler creates a new columns handler.
func NewColumnsHandler(limits ingest.Limits, previewRows int, log zerolog.Logger) *ColumnsHandler {
	return &ColumnsHandler{limits: limits, previewRows: previewRows, log: log}
}

// DetectResponse describes the mapping found for an upload, so a user can
// confirm or correct it before processing.
type DetectResponse struct {
	Filename        string                          `json:"filename"`
	RowCount        int                             `json:"row_count"`
	Columns         []string                        `json:"columns"`
	Mapping         *domain.ColumnMapping           `json:"mapping"`
	UnmappedHeaders []string                        `json:"unmapped_headers"`
	MissingRequired []domain.CanonicalField         `json:"missing_required"`
	CanProcess      bool                            `json:"can_process"`
	Issues          []validation.ErrorResponse      `json:"issues"`
	Suggestions     map[string][]columns.Suggestion `json:"suggestions"`
	Preview         *domain.Table                   `json:"preview"`
}

// Detect handles POST /api/columns/detect
func (h *ColumnsHandler) Detect(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, h.limits)
	if err != nil {
		writeInputError(w, err)
		return
	}
	t, err := ingest.ReadBytes(up.Data, up.Format)
	if err != nil {
		writeInputError(w, err)
		return
	}

	m := columns.NewResolver(logger.FromContext(r.Context())).Resolve(t.Columns)
	missing := validation.MissingRequired(m)
	unmapped := columns.UnmappedHeaders(t.Columns, m)

	resp := DetectResponse{
		Filename:        up.Filename,
		RowCount:        t.Len(),
		Columns:         t.Columns,
		Mapping:         m,
		UnmappedHeaders: unmapped,
		MissingRequired: missing,
		CanProcess:      len(missing) == 0,
		Issues:          append(validation.CheckStructure(m), validation.AmbiguityWarnings(m)...),
		Suggestions:     make(map[string][]columns.Suggestion, len(unmapped)),
		Preview:         ingest.Preview(t, h.previewRows),
	}
	for _, header := range unmapped {
		resp.Suggestions[header] = columns.Suggestions(header, suggestionsPerHeader)
	}

	h.log.Info().
		Str("filename", up.Filename).
		Int("columns", len(t.Columns)).
		Int("mapped", len(m.Assigned())).
		Bool("can_process", resp.CanProcess).
		Msg("Columns detected")
	middleware.WriteJSON(w, http.StatusOK, resp)
}

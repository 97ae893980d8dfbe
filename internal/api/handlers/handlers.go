// Package handlers implements the HTTP endpoints of the fraud analysis API.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/api/middleware"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/krishnaenterprise/CYBER/internal/validation"
	"github.com/rs/zerolog"
)

// maxFormMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const maxFormMemory = 32 << 20

// Uploader stores objects in the upload bucket.
type Uploader interface {
	UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
}

// Deps are the collaborators of the API. Publisher, JobStore and Uploader
// may be nil; the endpoints that need them then answer 503 or fall back to
// synchronous processing.
type Deps struct {
	Repository store.DatasetRepository
	Publisher  jobs.Publisher
	JobStore   jobs.JobStore
	Uploader   Uploader

	Bucket       string
	UploadPrefix string

	// JobMaxRetries applies to enqueued jobs; zero keeps the queue default.
	JobMaxRetries int

	Limits      ingest.Limits
	PreviewRows int
	Log         zerolog.Logger
}

// NewRouter registers every endpoint on a new mux.
func NewRouter(d Deps) *http.ServeMux {
	if d.Limits.MaxFileSize <= 0 {
		d.Limits = ingest.DefaultLimits()
	}

	columnsHandler := NewColumnsHandler(d.Limits, d.PreviewRows, d.Log)
	analyzeHandler := NewAnalyzeHandler(d.Limits, d.Log)
	datasetsHandler := NewDatasetsHandler(d, d.Log)
	jobsHandler := NewJobsHandler(d.JobStore, d.Log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", Health)

	mux.HandleFunc("POST /api/columns/detect", columnsHandler.Detect)
	mux.HandleFunc("POST /api/analyze", analyzeHandler.Analyze)

	mux.HandleFunc("POST /api/datasets", datasetsHandler.CreateDataset)
	mux.HandleFunc("GET /api/datasets", datasetsHandler.ListDatasets)
	mux.HandleFunc("GET /api/datasets/{id}", datasetsHandler.GetDataset)
	mux.HandleFunc("DELETE /api/datasets/{id}", datasetsHandler.DeleteDataset)
	mux.HandleFunc("GET /api/datasets/{id}/accounts", datasetsHandler.ListAccounts)
	mux.HandleFunc("GET /api/datasets/{id}/dashboard", datasetsHandler.Dashboard)
	mux.HandleFunc("GET /api/datasets/{id}/report", datasetsHandler.DownloadReport)
	mux.HandleFunc("GET /api/accounts/search", datasetsHandler.SearchAccounts)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	return mux
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// upload is a spreadsheet received in a multipart form.
type upload struct {
	Filename string
	Format   ingest.Format
	Data     []byte
}

// readUpload reads the "file" part of a multipart request and checks it
// against limits before parsing.
func readUpload(w http.ResponseWriter, r *http.Request, limits ingest.Limits) (*upload, error) {
	if limits.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limits.MaxFileSize+maxFormMemory)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: request body over %d bytes", ingest.ErrFileTooLarge, tooBig.Limit)
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing form field \"file\": %w", err)
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	format, err := ingest.Validate(filename, header.Size, limits)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return &upload{Filename: filename, Format: format, Data: data}, nil
}

// errorBody is the JSON shape of a failed request. Validation failures carry
// the issue code, a suggestion and the fields involved.
type errorBody struct {
	Error      string          `json:"error"`
	Code       validation.Code `json:"code,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Fields     []string        `json:"fields,omitempty"`
}

// writeInputError answers a request whose upload or mapping was rejected.
// Errors not raised by validation are reported as plain 400s.
func writeInputError(w http.ResponseWriter, err error) {
	var missing *validation.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		writeValidation(w, http.StatusUnprocessableEntity, validation.Classify(err))
	case errors.Is(err, ingest.ErrFileTooLarge):
		writeValidation(w, http.StatusRequestEntityTooLarge, validation.Classify(err))
	case errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrCorruptedFile),
		errors.Is(err, ingest.ErrUnsupportedFormat):
		writeValidation(w, http.StatusBadRequest, validation.Classify(err))
	default:
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	}
}

func writeValidation(w http.ResponseWriter, status int, resp validation.ErrorResponse) {
	body := errorBody{Error: resp.Message, Code: resp.Code, Suggestion: resp.Suggestion}
	for _, f := range resp.Fields {
		body.Fields = append(body.Fields, string(f))
	}
	middleware.WriteJSON(w, status, body)
}

// parseMapping decodes the optional "mapping" form field, a JSON object of
// canonical field name to source header.
func parseMapping(r *http.Request) (map[string]string, error) {
	raw := strings.TrimSpace(r.FormValue("mapping"))
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("invalid mapping JSON: %w", err)
	}
	return m, nil
}

// writeReport renders d as an attachment.
func writeReport(w http.ResponseWriter, format report.Format, d report.Data) error {
	var buf bytes.Buffer
	if err := report.Render(&buf, format, d); err != nil {
		return err
	}
	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(d.Filename, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(buf.Bytes())
	return err
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return f, nil
}

// uploadContentType is the MIME type stored with an uploaded spreadsheet.
func uploadContentType(format ingest.Format) string {
	switch format {
	case ingest.FormatCSV:
		return "text/csv"
	case ingest.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ingest.FormatXLS:
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}

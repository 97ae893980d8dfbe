package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/krishnaenterprise/CYBER/internal/api/middleware"
	"github.com/krishnaenterprise/CYBER/internal/dashboard"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/gcs"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/krishnaenterprise/CYBER/internal/pipeline"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/rs/zerolog"
)

// DatasetsHandler handles stored datasets and their accounts.
type DatasetsHandler struct {
	repo         store.DatasetRepository
	publisher    jobs.Publisher
	uploader     Uploader
	bucket       string
	uploadPrefix string
	maxRetries   int
	limits       ingest.Limits
	local        *pipeline.Pipeline
	log          zerolog.Logger
}

// NewDatasetsHandler creates a new datasets handler. Without an uploader
// and publisher, new datasets are processed within the request.
func NewDatasetsHandler(d Deps, log zerolog.Logger) *DatasetsHandler {
	h := &DatasetsHandler{
		repo:         d.Repository,
		publisher:    d.Publisher,
		uploader:     d.Uploader,
		bucket:       d.Bucket,
		uploadPrefix: d.UploadPrefix,
		maxRetries:   d.JobMaxRetries,
		limits:       d.Limits,
		log:          log,
	}
	if h.uploadPrefix == "" {
		h.uploadPrefix = "uploads"
	}
	if d.Repository != nil {
		h.local = pipeline.NewDatasetPipeline(pipeline.Config{Repository: d.Repository, Limits: d.Limits})
	}
	return h
}

func (h *DatasetsHandler) async() bool {
	return h.uploader != nil && h.publisher != nil && h.bucket != ""
}

// CreateDataset handles POST /api/datasets
func (h *DatasetsHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Dataset storage is not configured")
		return
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
	reportDate := strings.TrimSpace(r.FormValue("report_date"))
	var date civil.Date
	if reportDate != "" {
		if date, err = civil.ParseDate(reportDate); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid report_date, expected YYYY-MM-DD")
			return
		}
	}

	// Reject uploads that cannot be processed before queueing them.
	t, err := ingest.ReadBytes(up.Data, up.Format)
	if err != nil {
		writeInputError(w, err)
		return
	}
	check := pipeline.NewState()
	check.Table = t
	check.Overrides = overrides
	if err := pipeline.NewPipeline(&pipeline.ResolveColumnsStep{}, &pipeline.CheckRequiredStep{}).Execute(ctx, check); err != nil {
		writeInputError(w, err)
		return
	}

	datasetID := uuid.NewString()
	name := strings.TrimSpace(r.FormValue("name"))
	description := strings.TrimSpace(r.FormValue("description"))

	if !h.async() {
		state := pipeline.NewState()
		state.Filename = up.Filename
		state.Data = up.Data
		state.DatasetID = datasetID
		state.DatasetName = name
		state.Description = description
		state.ReportDate = date
		state.Overrides = overrides

		if err := h.local.Execute(ctx, state); err != nil {
			h.log.Error().Err(err).Str("dataset_id", datasetID).Msg("Failed to process dataset")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to process dataset")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"dataset_id": datasetID,
			"dataset":    state.Dataset,
			"stats":      state.Stats,
		})
		return
	}

	object := gcs.ObjectName(h.uploadPrefix, datasetID, up.Filename, time.Now())
	if err := h.uploader.UploadBytes(ctx, h.bucket, object, uploadContentType(up.Format), up.Data); err != nil {
		h.log.Error().Err(err).Str("object", object).Msg("Failed to store upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	job := &jobs.ProcessDatasetJob{
		DatasetID:   datasetID,
		DatasetName: name,
		Description: description,
		ReportDate:  reportDate,
		SourceURI:   gcs.URI(h.bucket, object),
		Filename:    up.Filename,
		Overrides:   raw,
		MaxRetries:  h.maxRetries,
	}
	if err := h.publisher.PublishProcessDataset(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue processing job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("dataset_id", datasetID).Str("source_uri", job.SourceURI).Msg("Processing job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"dataset_id": datasetID,
		"source_uri": job.SourceURI,
		"status":     string(job.Status),
	})
}

// ListDatasets handles GET /api/datasets
func (h *DatasetsHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	datasets, err := h.repo.ListDatasets(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list datasets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []*store.DatasetRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// GetDataset handles GET /api/datasets/{id}, including an integrity check
// of the stored accounts.
func (h *DatasetsHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.loadDataset(w, r)
	if !ok {
		return
	}
	v, err := store.Verify(r.Context(), h.repo, ds.DatasetID)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.DatasetID).Msg("Failed to verify dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to verify dataset")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset":      ds,
		"verification": v,
	})
}

// DeleteDataset handles DELETE /api/datasets/{id}
func (h *DatasetsHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	id := r.PathValue("id")
	err := h.repo.DeleteDataset(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Dataset not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to delete dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete dataset")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"dataset_id": id, "status": "deleted"})
}

// ListAccounts handles GET /api/datasets/{id}/accounts with the filters
// account, min_transactions, min_amount, bank, sort, order, limit and offset.
func (h *DatasetsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.loadDataset(w, r)
	if !ok {
		return
	}
	q, err := accountQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.repo.LoadAccounts(r.Context(), ds.DatasetID, q)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.DatasetID).Msg("Failed to load accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load accounts")
		return
	}
	if rows == nil {
		rows = []*store.AccountRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ds.DatasetID,
		"accounts":   rows,
		"count":      len(rows),
	})
}

// Dashboard handles GET /api/datasets/{id}/dashboard?top=N
func (h *DatasetsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ds, accounts, ok := h.loadAllAccounts(w, r)
	if !ok {
		return
	}
	top, err := queryInt(r, "top")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if top <= 0 {
		top = dashboard.DefaultTopN
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ds.DatasetID,
		"statistics": dashboard.ComputeStatistics(accounts, top),
		"banks":      dashboard.BankBreakdown(accounts),
	})
}

// DownloadReport handles GET /api/datasets/{id}/report?format=csv|xlsx|pdf|txt
func (h *DatasetsHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if r.URL.Query().Get("format") == "" {
		format, err = report.FormatCSV, nil
	}
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds, accounts, ok := h.loadAllAccounts(w, r)
	if !ok {
		return
	}
	filename := ds.SourceFilename
	if filename == "" {
		filename = ds.Name
	}
	data := report.Data{
		Accounts: accounts,
		Stats: domain.ProcessingStats{
			UniqueAccounts:      int(ds.AccountCount),
			TotalTransactions:   int(ds.TotalTransactions),
			TotalAmount:         ds.TotalAmount,
			TotalDisputedAmount: ds.TotalDisputedAmount,
		},
		Filename:    filename,
		GeneratedAt: time.Now(),
	}
	if err := writeReport(w, format, data); err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.DatasetID).Msg("Failed to render report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render report")
	}
}

// SearchAccounts handles GET /api/accounts/search?q=&limit=
func (h *DatasetsHandler) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		middleware.WriteError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.repo.SearchAccounts(r.Context(), q, limit)
	if err != nil {
		h.log.Error().Err(err).Str("q", q).Msg("Failed to search accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to search accounts")
		return
	}
	if rows == nil {
		rows = []*store.AccountRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": rows,
		"count":    len(rows),
	})
}

func (h *DatasetsHandler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Dataset storage is not configured")
		return false
	}
	return true
}

// loadDataset fetches the dataset named in the path, answering 404 when it
// does not exist.
func (h *DatasetsHandler) loadDataset(w http.ResponseWriter, r *http.Request) (*store.DatasetRow, bool) {
	if !h.requireRepo(w) {
		return nil, false
	}
	id := r.PathValue("id")
	ds, err := h.repo.GetDataset(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Dataset not found")
		return nil, false
	case err != nil:
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to get dataset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get dataset")
		return nil, false
	}
	return ds, true
}

func (h *DatasetsHandler) loadAllAccounts(w http.ResponseWriter, r *http.Request) (*store.DatasetRow, []domain.AggregatedAccount, bool) {
	ds, ok := h.loadDataset(w, r)
	if !ok {
		return nil, nil, false
	}
	rows, err := h.repo.LoadAccounts(r.Context(), ds.DatasetID, store.AccountQuery{})
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", ds.DatasetID).Msg("Failed to load accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load accounts")
		return nil, nil, false
	}
	return ds, store.Accounts(rows), true
}

// accountQuery reads the account filters from the query string.
func accountQuery(r *http.Request) (store.AccountQuery, error) {
	v := r.URL.Query()
	q := store.AccountQuery{
		Account:    strings.TrimSpace(v.Get("account")),
		Bank:       strings.TrimSpace(v.Get("bank")),
		SortBy:     v.Get("sort"),
		Descending: strings.EqualFold(v.Get("order"), "desc"),
	}

	var err error
	if q.MinTransactions, err = queryInt(r, "min_transactions"); err != nil {
		return q, err
	}
	if q.MinAmount, err = queryFloat(r, "min_amount"); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		return q, err
	}
	return q, q.Validate()
}

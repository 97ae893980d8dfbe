package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/krishnaenterprise/CYBER/internal/infra/sqlite"
	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/krishnaenterprise/CYBER/internal/jobs/inmemory"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "Bank Account No,Ack No,Amount,Bank Name\n" +
	"123456789012,ACK001,15000,SBI\n" +
	"123456789012,ACK002,25000,SBI\n" +
	"987654321098,ACK003,75000,HDFC\n"

type mockUploader struct {
	UploadBytesFunc func(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
}

func (m *mockUploader) UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	return m.UploadBytesFunc(ctx, bucketName, objectName, contentType, data)
}

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ProcessDatasetJob) error
}

func (m *mockPublisher) PublishProcessDataset(ctx context.Context, job *jobs.ProcessDatasetJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *mockPublisher) Close() error { return nil }

// multipartRequest builds a request carrying filename as the "file" part
// plus the given form fields.
func multipartRequest(t *testing.T, method, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func openRepo(t *testing.T) store.DatasetRepository {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "fraud.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHealth(t *testing.T) {
	rec := serve(NewRouter(Deps{Log: zerolog.Nop()}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestDetect(t *testing.T) {
	router := NewRouter(Deps{PreviewRows: 2, Log: zerolog.Nop()})
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/columns/detect", "fraud.csv", sampleCSV+"555,ACK9,10,X\n", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "fraud.csv", body["filename"])
	assert.Equal(t, 4.0, body["row_count"])
	assert.Equal(t, true, body["can_process"])
	assert.Empty(t, body["missing_required"])

	mapping := body["mapping"].(map[string]interface{})
	assert.Equal(t, "Bank Account No", mapping["bank_account_number"])
	assert.Equal(t, "Amount", mapping["amount"])

	preview := body["preview"].(map[string]interface{})
	assert.Len(t, preview["rows"], 2)
	assert.Equal(t, "123456789012", preview["rows"].([]interface{})[0].([]interface{})[0])
}

func TestDetect_RejectedUploads(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
		code     string
	}{
		{"unsupported extension", "fraud.pdf", "%PDF", http.StatusBadRequest, "INVALID_FORMAT"},
		{"empty file", "fraud.csv", "", http.StatusBadRequest, "EMPTY_FILE"},
		{"missing file part", "", "", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, multipartRequest(t, http.MethodPost, "/api/columns/detect", tt.filename, tt.content, nil))
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestAnalyze_JSON(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze", "fraud.csv", sampleCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 2)
	assert.Equal(t, "987654321098", resp.Accounts[0].AccountNumber)
	assert.Equal(t, "ACK001;ACK002", resp.Accounts[1].AcknowledgementNumbers)
	assert.Equal(t, 115000.0, resp.Stats.TotalAmount)
	assert.Equal(t, 2, resp.Statistics.UniqueAccounts)
	assert.NotEmpty(t, resp.Audit)
}

func TestAnalyze_Report(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze?format=csv", "fraud.csv", sampleCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "fraud_report.csv")
	assert.Contains(t, rec.Body.String(), "987654321098")
}

func TestAnalyze_MissingRequired(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	csv := "Bank Account No,Bank Name\n123456789012,SBI\n"
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze", "fraud.csv", csv, nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "NO_AMOUNT_COLUMN", body["code"])
	assert.Equal(t, []interface{}{"amount"}, body["fields"])
}

func TestAnalyze_Mapping(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	csv := "Col A,Col B\n123456789012,100\n123456789012,50\n"

	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze", "fraud.csv", csv, map[string]string{
		"mapping": `{"bank_account_number":"Col A","amount":"Col B"}`,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 1)
	assert.Equal(t, 150.0, resp.Accounts[0].TotalAmount)

	for _, mapping := range []string{`{not json`, `{"colour":"Col A"}`, `{"amount":"Nope"}`} {
		rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze", "fraud.csv", csv, map[string]string{"mapping": mapping}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, mapping)
	}
}

func TestAnalyze_UnknownFormat(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/analyze?format=docx", "fraud.csv", sampleCSV, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasets_Lifecycle(t *testing.T) {
	router := NewRouter(Deps{Repository: openRepo(t), Log: zerolog.Nop()})

	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "march.csv", sampleCSV, map[string]string{
		"name":        "March complaints",
		"report_date": "2024-03-31",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decode(t, rec)["dataset_id"].(string)
	require.NotEmpty(t, id)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["count"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "March complaints", body["dataset"].(map[string]interface{})["name"])
	assert.Equal(t, true, body["verification"].(map[string]interface{})["valid"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/accounts?sort=total_amount&order=asc&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accounts := decode(t, rec)["accounts"].([]interface{})
	require.Len(t, accounts, 1)
	assert.Equal(t, "123456789012", accounts[0].(map[string]interface{})["account_number"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/dashboard?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)["statistics"].(map[string]interface{})
	assert.Equal(t, 2.0, stats["unique_accounts"])
	assert.Len(t, stats["top_accounts_by_amount"], 1)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/report?format=txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "march_audit.txt")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/accounts/search?q=87654", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["count"])

	rec = serve(router, httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasets_BadRequests(t *testing.T) {
	repo := openRepo(t)
	router := NewRouter(Deps{Repository: repo, Log: zerolog.Nop()})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/missing/accounts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "fraud.csv", sampleCSV, map[string]string{"report_date": "31/03/2024"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/accounts/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/any/report?format=docx", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAccounts_InvalidQuery(t *testing.T) {
	router := NewRouter(Deps{Repository: openRepo(t), Log: zerolog.Nop()})
	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "fraud.csv", sampleCSV, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["dataset_id"].(string)

	for _, q := range []string{"sort=password", "limit=-1", "min_amount=lots"} {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/accounts?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCreateDataset_Async(t *testing.T) {
	var (
		uploaded  string
		published *jobs.ProcessDatasetJob
	)
	router := NewRouter(Deps{
		Repository: openRepo(t),
		Uploader: &mockUploader{UploadBytesFunc: func(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
			assert.Equal(t, "uploads-bucket", bucketName)
			assert.Equal(t, "text/csv", contentType)
			assert.Equal(t, sampleCSV, string(data))
			uploaded = objectName
			return nil
		}},
		Publisher: &mockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessDatasetJob) error {
			job.JobID = "job-1"
			job.Status = jobs.JobStatusPending
			published = job
			return nil
		}},
		Bucket: "uploads-bucket",
		Log:    zerolog.Nop(),
	})

	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "march.csv", sampleCSV, map[string]string{
		"name":    "March",
		"mapping": `{"state":""}`,
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "pending", body["status"])

	require.NotNil(t, published)
	assert.Equal(t, body["dataset_id"], published.DatasetID)
	assert.Equal(t, "March", published.DatasetName)
	assert.Equal(t, "march.csv", published.Filename)
	assert.Equal(t, map[string]string{"state": ""}, published.Overrides)
	assert.True(t, strings.HasPrefix(uploaded, "uploads/"))
	assert.True(t, strings.HasSuffix(uploaded, published.DatasetID+"_march.csv"))
	assert.Equal(t, "gs://uploads-bucket/"+uploaded, published.SourceURI)
}

func TestCreateDataset_AsyncFailures(t *testing.T) {
	publishCalls := 0
	deps := Deps{
		Repository: openRepo(t),
		Uploader: &mockUploader{UploadBytesFunc: func(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
			return nil
		}},
		Publisher: &mockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessDatasetJob) error {
			publishCalls++
			return errors.New("queue is closed")
		}},
		Bucket: "uploads-bucket",
		Log:    zerolog.Nop(),
	}
	router := NewRouter(deps)

	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "fraud.csv", "Bank Account No\n123\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, publishCalls)

	rec = serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "fraud.csv", sampleCSV, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, publishCalls)
}

func TestDatasets_NoRepository(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})

	rec := serve(router, multipartRequest(t, http.MethodPost, "/api/datasets", "fraud.csv", sampleCSV, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobs(t *testing.T) {
	jobStore := inmemory.NewStore()
	ctx := context.Background()
	require.NoError(t, jobStore.SaveJob(ctx, &jobs.ProcessDatasetJob{JobID: "job-1", DatasetID: "ds-1", Status: jobs.JobStatusCompleted}))
	require.NoError(t, jobStore.SaveJob(ctx, &jobs.ProcessDatasetJob{JobID: "job-2", DatasetID: "ds-2", Status: jobs.JobStatusPending}))

	router := NewRouter(Deps{JobStore: jobStore, Log: zerolog.Nop()})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["status"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs?dataset_id=ds-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["count"])
	assert.Equal(t, "job-2", body["jobs"].([]interface{})[0].(map[string]interface{})["job_id"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs_NoStore(t *testing.T) {
	router := NewRouter(Deps{Log: zerolog.Nop()})
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"github.com/krishnaenterprise/CYBER/internal/validation"
)

// StorageService is the object storage the pipeline reads uploads from and
// publishes reports to.
type StorageService interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
	UploadBytes(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
	ExtractFilenameFromGCSURI(uri string) string
}

// NotionSyncer exports ranked accounts and returns how many pages it wrote.
type NotionSyncer interface {
	SyncAccounts(ctx context.Context, datasetID string, accounts []domain.AggregatedAccount) (int, error)
}

// PipelineState holds the shared state across all pipeline steps. Each step
// reads what earlier steps produced and fills in its own part.
type PipelineState struct {
	// Source: either SourceURI is fetched, or Data is supplied directly.
	SourceURI string
	Filename  string
	Data      []byte

	DatasetID   string
	DatasetName string
	Description string
	ReportDate  civil.Date

	Overrides map[domain.CanonicalField]string

	Table    *domain.Table
	Mapping  *domain.ColumnMapping
	Cleaned  *domain.Table
	Quality  *validation.QualityReport
	Accounts []domain.AggregatedAccount
	Stats    domain.ProcessingStats

	Dataset    *store.DatasetRow
	ReportURIs map[report.Format]string
	Synced     int

	Audit *report.AuditTrail

	started time.Time
}

// NewState returns an empty state with a fresh audit trail.
func NewState() *PipelineState {
	return &PipelineState{
		Audit:      report.NewAuditTrail(),
		ReportURIs: make(map[report.Format]string),
	}
}

// ensureDatasetID assigns a dataset id when the caller did not.
func (s *PipelineState) ensureDatasetID() string {
	if s.DatasetID == "" {
		s.DatasetID = uuid.NewString()
	}
	return s.DatasetID
}

// ReportData assembles what the report writers need from the state.
func (s *PipelineState) ReportData() report.Data {
	return report.Data{
		Accounts:    s.Accounts,
		Stats:       s.Stats,
		Quality:     s.Quality,
		Audit:       s.Audit,
		Filename:    s.Filename,
		GeneratedAt: time.Now(),
	}
}

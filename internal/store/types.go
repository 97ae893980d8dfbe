// Package store defines the persisted form of processed datasets and the
// repository interface the storage backends implement.
package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// ErrNotFound is returned when a dataset id does not exist.
var ErrNotFound = errors.New("dataset not found")

// DatasetRepository persists processed datasets and their account profiles.
type DatasetRepository interface {
	// SaveDataset stores the dataset row and its accounts. Accounts must be in
	// sorted order; their position is their rank.
	SaveDataset(ctx context.Context, ds *DatasetRow, accounts []domain.AggregatedAccount) error

	// ListDatasets returns every dataset, newest first.
	ListDatasets(ctx context.Context) ([]*DatasetRow, error)

	// GetDataset returns one dataset or ErrNotFound.
	GetDataset(ctx context.Context, datasetID string) (*DatasetRow, error)

	// LoadAccounts returns the accounts of a dataset matching q.
	LoadAccounts(ctx context.Context, datasetID string, q AccountQuery) ([]*AccountRow, error)

	// SearchAccounts finds accounts whose number contains substring across
	// every dataset.
	SearchAccounts(ctx context.Context, substring string, limit int) ([]*AccountRow, error)

	// DeleteDataset removes a dataset and its accounts.
	DeleteDataset(ctx context.Context, datasetID string) error

	Close() error
}

// DatasetRow is one processed upload.
type DatasetRow struct {
	DatasetID   string `bigquery:"dataset_id" json:"dataset_id"`
	Name        string `bigquery:"name" json:"name"`
	Description string `bigquery:"description" json:"description"`

	SourceFilename string `bigquery:"source_filename" json:"source_filename"`
	SourceURI      string `bigquery:"source_uri" json:"source_uri,omitempty"`

	ReportDate bigquery.NullDate `bigquery:"report_date" json:"report_date"`

	AccountCount        int64   `bigquery:"account_count" json:"account_count"`
	TotalTransactions   int64   `bigquery:"total_transactions" json:"total_transactions"`
	TotalAmount         float64 `bigquery:"total_amount" json:"total_amount"`
	TotalDisputedAmount float64 `bigquery:"total_disputed_amount" json:"total_disputed_amount"`

	ChecksumSHA256 string    `bigquery:"checksum_sha256" json:"checksum_sha256"`
	CreatedTS      time.Time `bigquery:"created_ts" json:"created_ts"`
}

// NewDatasetRow builds the row for a set of sorted accounts. A zero report
// date is stored as null.
func NewDatasetRow(name, description string, reportDate civil.Date, accounts []domain.AggregatedAccount) *DatasetRow {
	row := &DatasetRow{
		DatasetID:      uuid.NewString(),
		Name:           name,
		Description:    description,
		ReportDate:     bigquery.NullDate{Date: reportDate, Valid: !reportDate.IsZero()},
		AccountCount:   int64(len(accounts)),
		ChecksumSHA256: Checksum(accounts),
		CreatedTS:      time.Now().UTC(),
	}
	for _, a := range accounts {
		row.TotalTransactions += int64(a.TotalTransactions)
		row.TotalAmount += a.TotalAmount
		row.TotalDisputedAmount += a.TotalDisputedAmount
	}
	return row
}

// AccountRow is one aggregated account within a dataset.
type AccountRow struct {
	DatasetID string `bigquery:"dataset_id" json:"dataset_id"`
	Position  int64  `bigquery:"position" json:"position"`

	AccountNumber          string  `bigquery:"account_number" json:"account_number"`
	AcknowledgementNumbers string  `bigquery:"acknowledgement_numbers" json:"acknowledgement_numbers"`
	AckCount               int64   `bigquery:"ack_count" json:"ack_count"`
	BankName               string  `bigquery:"bank_name" json:"bank_name"`
	IFSCCode               string  `bigquery:"ifsc_code" json:"ifsc_code"`
	Address                string  `bigquery:"address" json:"address"`
	District               string  `bigquery:"district" json:"district"`
	State                  string  `bigquery:"state" json:"state"`
	TotalTransactions      int64   `bigquery:"total_transactions" json:"total_transactions"`
	TotalAmount            float64 `bigquery:"total_amount" json:"total_amount"`
	TotalDisputedAmount    float64 `bigquery:"total_disputed_amount" json:"total_disputed_amount"`
	RiskScore              float64 `bigquery:"risk_score" json:"risk_score"`
}

// NewAccountRows converts sorted accounts into rows numbered from 1.
func NewAccountRows(datasetID string, accounts []domain.AggregatedAccount) []*AccountRow {
	rows := make([]*AccountRow, len(accounts))
	for i, a := range accounts {
		rows[i] = &AccountRow{
			DatasetID:              datasetID,
			Position:               int64(i + 1),
			AccountNumber:          a.AccountNumber,
			AcknowledgementNumbers: a.AcknowledgementNumbers,
			AckCount:               int64(a.AckCount()),
			BankName:               a.BankName,
			IFSCCode:               a.IFSCCode,
			Address:                a.Address,
			District:               a.District,
			State:                  a.State,
			TotalTransactions:      int64(a.TotalTransactions),
			TotalAmount:            a.TotalAmount,
			TotalDisputedAmount:    a.TotalDisputedAmount,
			RiskScore:              a.RiskScore,
		}
	}
	return rows
}

// Account converts the row back to its domain form.
func (r *AccountRow) Account() domain.AggregatedAccount {
	return domain.AggregatedAccount{
		AccountNumber:          r.AccountNumber,
		BankName:               r.BankName,
		IFSCCode:               r.IFSCCode,
		Address:                r.Address,
		District:               r.District,
		State:                  r.State,
		TotalTransactions:      int(r.TotalTransactions),
		AcknowledgementNumbers: r.AcknowledgementNumbers,
		TotalAmount:            r.TotalAmount,
		TotalDisputedAmount:    r.TotalDisputedAmount,
		RiskScore:              r.RiskScore,
	}
}

// Accounts converts rows to domain accounts, keeping their order.
func Accounts(rows []*AccountRow) []domain.AggregatedAccount {
	out := make([]domain.AggregatedAccount, len(rows))
	for i, r := range rows {
		out[i] = r.Account()
	}
	return out
}

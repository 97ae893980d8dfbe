// Package bigquery stores processed datasets and their ranked accounts in
// BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/store"
)

const (
	datasetsTable = "datasets"
	accountsTable = "aggregated_accounts"

	// insertBatchSize bounds each streaming insert request.
	insertBatchSize = 500
)

// Tables locates the repository's tables.
type Tables struct {
	ProjectID string
	DatasetID string
}

// Ref returns the fully qualified, backtick-quoted name of table.
func (t Tables) Ref(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, table)
}

// BigQueryDatasetRepository is the BigQuery implementation of
// store.DatasetRepository. It holds one client for its lifetime.
type BigQueryDatasetRepository struct {
	client *bigquery.Client
	tables Tables
}

var _ store.DatasetRepository = (*BigQueryDatasetRepository)(nil)

// NewBigQueryDatasetRepository creates a client for projectID and a
// repository over the tables in datasetID.
func NewBigQueryDatasetRepository(ctx context.Context, projectID, datasetID string) (*BigQueryDatasetRepository, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewBigQueryDatasetRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryDatasetRepository: creating client: %w", err)
	}
	return NewBigQueryDatasetRepositoryWithClient(client, datasetID), nil
}

// NewBigQueryDatasetRepositoryWithClient wraps an existing client. The
// repository takes ownership and closes it on Close.
func NewBigQueryDatasetRepositoryWithClient(client *bigquery.Client, datasetID string) *BigQueryDatasetRepository {
	return &BigQueryDatasetRepository{
		client: client,
		tables: Tables{ProjectID: client.Project(), DatasetID: datasetID},
	}
}

// Close closes the BigQuery client connection.
func (r *BigQueryDatasetRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client exposes the underlying client, for schema management.
func (r *BigQueryDatasetRepository) Client() *bigquery.Client { return r.client }

// Tables returns the table location.
func (r *BigQueryDatasetRepository) Tables() Tables { return r.tables }

func (r *BigQueryDatasetRepository) SaveDataset(ctx context.Context, ds *store.DatasetRow, accounts []domain.AggregatedAccount) error {
	return SaveDatasetWithClient(ctx, r.client, r.tables, ds, accounts)
}

func (r *BigQueryDatasetRepository) ListDatasets(ctx context.Context) ([]*store.DatasetRow, error) {
	return ListDatasetsWithClient(ctx, r.client, r.tables)
}

func (r *BigQueryDatasetRepository) GetDataset(ctx context.Context, datasetID string) (*store.DatasetRow, error) {
	return GetDatasetWithClient(ctx, r.client, r.tables, datasetID)
}

func (r *BigQueryDatasetRepository) LoadAccounts(ctx context.Context, datasetID string, q store.AccountQuery) ([]*store.AccountRow, error) {
	return LoadAccountsWithClient(ctx, r.client, r.tables, datasetID, q)
}

func (r *BigQueryDatasetRepository) SearchAccounts(ctx context.Context, substring string, limit int) ([]*store.AccountRow, error) {
	return SearchAccountsWithClient(ctx, r.client, r.tables, substring, limit)
}

func (r *BigQueryDatasetRepository) DeleteDataset(ctx context.Context, datasetID string) error {
	return DeleteDatasetWithClient(ctx, r.client, r.tables, datasetID)
}

// runQuery runs a DML or DDL statement to completion.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

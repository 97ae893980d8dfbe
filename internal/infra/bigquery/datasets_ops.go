package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/store"
	"google.golang.org/api/iterator"
)

// SaveDatasetWithClient streams the accounts in batches and then records the
// dataset row, so a dataset only becomes listable once its accounts exist.
func SaveDatasetWithClient(ctx context.Context, client *bigquery.Client, t Tables, ds *store.DatasetRow, accounts []domain.AggregatedAccount) error {
	log := logger.FromContext(ctx)

	if ds == nil || ds.DatasetID == "" {
		return fmt.Errorf("SaveDatasetWithClient: dataset id is required")
	}

	rows := store.NewAccountRows(ds.DatasetID, accounts)
	if err := InsertAccountsWithClient(ctx, client, t, rows); err != nil {
		return fmt.Errorf("SaveDatasetWithClient: %w", err)
	}

	sql, params := insertDatasetQuery(t, ds)
	q := client.Query(sql)
	q.Parameters = params
	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("SaveDatasetWithClient: inserting dataset: %w", err)
	}

	log.Info().
		Str("dataset_id", ds.DatasetID).
		Int("accounts", len(rows)).
		Msg("Dataset saved to BigQuery")
	return nil
}

// InsertAccountsWithClient streams account rows in batches of 500.
func InsertAccountsWithClient(ctx context.Context, client *bigquery.Client, t Tables, rows []*store.AccountRow) error {
	inserter := client.DatasetInProject(t.ProjectID, t.DatasetID).Table(accountsTable).Inserter()
	for i, batch := range batches(rows, insertBatchSize) {
		if err := inserter.Put(ctx, batch); err != nil {
			return fmt.Errorf("InsertAccountsWithClient: batch %d: %w", i, err)
		}
	}
	return nil
}

// ListDatasetsWithClient returns every dataset, newest first.
func ListDatasetsWithClient(ctx context.Context, client *bigquery.Client, t Tables) ([]*store.DatasetRow, error) {
	it, err := client.Query(listDatasetsQuery(t)).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDatasetsWithClient: reading query: %w", err)
	}

	var out []*store.DatasetRow
	for {
		var row store.DatasetRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDatasetsWithClient: iterating: %w", err)
		}
		out = append(out, &row)
	}
	return out, nil
}

// GetDatasetWithClient returns one dataset or store.ErrNotFound.
func GetDatasetWithClient(ctx context.Context, client *bigquery.Client, t Tables, datasetID string) (*store.DatasetRow, error) {
	sql, params := getDatasetQuery(t, datasetID)
	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetDatasetWithClient: reading query: %w", err)
	}

	var row store.DatasetRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDatasetWithClient: iterating: %w", err)
	}
	return &row, nil
}

// LoadAccountsWithClient returns a dataset's accounts matching q.
func LoadAccountsWithClient(ctx context.Context, client *bigquery.Client, t Tables, datasetID string, aq store.AccountQuery) ([]*store.AccountRow, error) {
	sql, params, err := loadAccountsQuery(t, datasetID, aq)
	if err != nil {
		return nil, fmt.Errorf("LoadAccountsWithClient: %w", err)
	}
	q := client.Query(sql)
	q.Parameters = params

	rows, err := readAccounts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("LoadAccountsWithClient: %w", err)
	}
	return rows, nil
}

// SearchAccountsWithClient finds accounts across datasets by number substring.
func SearchAccountsWithClient(ctx context.Context, client *bigquery.Client, t Tables, substring string, limit int) ([]*store.AccountRow, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return nil, fmt.Errorf("SearchAccountsWithClient: search term cannot be empty")
	}
	sql, params := searchAccountsQuery(t, substring, limit)
	q := client.Query(sql)
	q.Parameters = params

	rows, err := readAccounts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SearchAccountsWithClient: %w", err)
	}
	return rows, nil
}

func readAccounts(ctx context.Context, q *bigquery.Query) ([]*store.AccountRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}
	var out []*store.AccountRow
	for {
		var row store.AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		out = append(out, &row)
	}
	return out, nil
}

// DeleteDatasetWithClient removes the accounts and then the dataset row.
// Rows still in the streaming buffer cannot be deleted; BigQuery reports
// that as a job error which is returned unchanged.
func DeleteDatasetWithClient(ctx context.Context, client *bigquery.Client, t Tables, datasetID string) error {
	if _, err := GetDatasetWithClient(ctx, client, t, datasetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("DeleteDatasetWithClient: %w", err)
	}

	for _, table := range []string{accountsTable, datasetsTable} {
		q := client.Query(deleteQuery(t, table))
		q.Parameters = []bigquery.QueryParameter{{Name: "dataset_id", Value: datasetID}}
		if err := runQuery(ctx, q); err != nil {
			return fmt.Errorf("DeleteDatasetWithClient: deleting from %s: %w", table, err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().Str("dataset_id", datasetID).Msg("Dataset deleted from BigQuery")
	return nil
}

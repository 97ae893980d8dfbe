package bigquery

import (
	"fmt"
	"sort"

	"cloud.google.com/go/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/store"
)

const datasetColumns = `
			dataset_id,
			name,
			description,
			source_filename,
			source_uri,
			report_date,
			account_count,
			total_transactions,
			total_amount,
			total_disputed_amount,
			checksum_sha256,
			created_ts`

const accountColumns = `
			dataset_id,
			position,
			account_number,
			acknowledgement_numbers,
			ack_count,
			bank_name,
			ifsc_code,
			address,
			district,
			state,
			total_transactions,
			total_amount,
			total_disputed_amount,
			risk_score`

// insertDatasetQuery builds the DML insert for one dataset row.
func insertDatasetQuery(t Tables, ds *store.DatasetRow) (string, []bigquery.QueryParameter) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (%s
		)
		VALUES (
			@dataset_id, @name, @description, @source_filename, @source_uri,
			@report_date, @account_count, @total_transactions, @total_amount,
			@total_disputed_amount, @checksum_sha256, @created_ts
		)
	`, t.Ref(datasetsTable), datasetColumns)

	params := []bigquery.QueryParameter{
		{Name: "dataset_id", Value: ds.DatasetID},
		{Name: "name", Value: ds.Name},
		{Name: "description", Value: ds.Description},
		{Name: "source_filename", Value: ds.SourceFilename},
		{Name: "source_uri", Value: ds.SourceURI},
		{Name: "report_date", Value: ds.ReportDate},
		{Name: "account_count", Value: ds.AccountCount},
		{Name: "total_transactions", Value: ds.TotalTransactions},
		{Name: "total_amount", Value: ds.TotalAmount},
		{Name: "total_disputed_amount", Value: ds.TotalDisputedAmount},
		{Name: "checksum_sha256", Value: ds.ChecksumSHA256},
		{Name: "created_ts", Value: ds.CreatedTS},
	}
	return sql, params
}

func listDatasetsQuery(t Tables) string {
	return fmt.Sprintf(`
		SELECT%s
		FROM %s
		ORDER BY created_ts DESC
	`, datasetColumns, t.Ref(datasetsTable))
}

func getDatasetQuery(t Tables, datasetID string) (string, []bigquery.QueryParameter) {
	sql := fmt.Sprintf(`
		SELECT%s
		FROM %s
		WHERE dataset_id = @dataset_id
		LIMIT 1
	`, datasetColumns, t.Ref(datasetsTable))
	return sql, []bigquery.QueryParameter{{Name: "dataset_id", Value: datasetID}}
}

// loadAccountsQuery builds the filtered account query. Sort columns come from
// a whitelist and paging values are validated integers, so only they are
// formatted into the SQL text.
func loadAccountsQuery(t Tables, datasetID string, q store.AccountQuery) (string, []bigquery.QueryParameter, error) {
	orderBy, err := q.OrderBy()
	if err != nil {
		return "", nil, err
	}
	filter := q.Where(datasetID)

	sql := fmt.Sprintf(`
		SELECT%s
		FROM %s
		WHERE %s
		ORDER BY %s`, accountColumns, t.Ref(accountsTable), filter.SQL(), orderBy)
	if q.Limit > 0 {
		sql += fmt.Sprintf("\n\t\tLIMIT %d OFFSET %d", q.Limit, q.Offset)
	} else if q.Offset > 0 {
		// BigQuery requires LIMIT before OFFSET.
		sql += fmt.Sprintf("\n\t\tLIMIT 9223372036854775807 OFFSET %d", q.Offset)
	}
	return sql + "\n", toParameters(filter.Params), nil
}

func searchAccountsQuery(t Tables, substring string, limit int) (string, []bigquery.QueryParameter) {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	sql := fmt.Sprintf(`
		SELECT%s
		FROM %s
		WHERE INSTR(account_number, @q) > 0
		ORDER BY total_amount DESC, dataset_id, position
		LIMIT %d
	`, accountColumns, t.Ref(accountsTable), limit)
	return sql, []bigquery.QueryParameter{{Name: "q", Value: substring}}
}

func deleteQuery(t Tables, table string) string {
	return fmt.Sprintf(`
		DELETE FROM %s
		WHERE dataset_id = @dataset_id
	`, t.Ref(table))
}

// toParameters converts named values to query parameters ordered by name.
func toParameters(params map[string]any) []bigquery.QueryParameter {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bigquery.QueryParameter, len(names))
	for i, name := range names {
		out[i] = bigquery.QueryParameter{Name: name, Value: params[name]}
	}
	return out
}

// batches splits rows into consecutive chunks of at most size.
func batches[T any](rows []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

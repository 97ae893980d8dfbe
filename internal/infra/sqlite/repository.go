// Package sqlite is the single-file dataset store used for local runs and
// the CLI. It shares the schema and query model of the BigQuery backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/logger"
	"github.com/krishnaenterprise/CYBER/internal/store"
	_ "modernc.org/sqlite"
)

// progressEvery is how often a long save logs its progress.
const progressEvery = 10000

const datasetColumns = `dataset_id, name, description, source_filename, source_uri, report_date,
	account_count, total_transactions, total_amount, total_disputed_amount, checksum_sha256, created_ts`

const accountColumns = `dataset_id, position, account_number, acknowledgement_numbers, ack_count,
	bank_name, ifsc_code, address, district, state,
	total_transactions, total_amount, total_disputed_amount, risk_score`

// SQLiteDatasetRepository implements store.DatasetRepository on a SQLite file.
type SQLiteDatasetRepository struct {
	db *sql.DB
}

var _ store.DatasetRepository = (*SQLiteDatasetRepository)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*SQLiteDatasetRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("Open: database path is required")
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// the pool's own connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}

	repo := &SQLiteDatasetRepository{db: db}
	if _, err := repo.EnsureSchema(ctx, "sqlite-open"); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return repo, nil
}

// Close closes the database.
func (r *SQLiteDatasetRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveDataset writes the dataset row and its accounts in one transaction.
func (r *SQLiteDatasetRepository) SaveDataset(ctx context.Context, ds *store.DatasetRow, accounts []domain.AggregatedAccount) error {
	log := logger.FromContext(ctx)

	if ds == nil || ds.DatasetID == "" {
		return fmt.Errorf("SaveDataset: dataset id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveDataset: begin: %w", err)
	}
	defer tx.Rollback()

	var reportDate any
	if ds.ReportDate.Valid {
		reportDate = ds.ReportDate.Date.String()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (`+datasetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.DatasetID, ds.Name, ds.Description, ds.SourceFilename, ds.SourceURI, reportDate,
		ds.AccountCount, ds.TotalTransactions, ds.TotalAmount, ds.TotalDisputedAmount,
		ds.ChecksumSHA256, ds.CreatedTS.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("SaveDataset: inserting dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO aggregated_accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("SaveDataset: preparing account insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range store.NewAccountRows(ds.DatasetID, accounts) {
		if _, err := stmt.ExecContext(ctx,
			row.DatasetID, row.Position, row.AccountNumber, row.AcknowledgementNumbers, row.AckCount,
			row.BankName, row.IFSCCode, row.Address, row.District, row.State,
			row.TotalTransactions, row.TotalAmount, row.TotalDisputedAmount, row.RiskScore,
		); err != nil {
			return fmt.Errorf("SaveDataset: inserting account %d: %w", row.Position, err)
		}
		if (i+1)%progressEvery == 0 {
			log.Debug().Int("rows", i+1).Int("total", len(accounts)).Msg("Saving accounts")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveDataset: commit: %w", err)
	}

	log.Info().
		Str("dataset_id", ds.DatasetID).
		Int("accounts", len(accounts)).
		Msg("Dataset saved to SQLite")
	return nil
}

// ListDatasets returns every dataset, newest first.
func (r *SQLiteDatasetRepository) ListDatasets(ctx context.Context) ([]*store.DatasetRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY created_ts DESC, dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("ListDatasets: query: %w", err)
	}
	defer rows.Close()

	var out []*store.DatasetRow
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDatasets: %w", err)
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDatasets: iterating: %w", err)
	}
	return out, nil
}

// GetDataset returns one dataset or store.ErrNotFound.
func (r *SQLiteDatasetRepository) GetDataset(ctx context.Context, datasetID string) (*store.DatasetRow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE dataset_id = ?`, datasetID)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetDataset: %w", err)
	}
	return ds, nil
}

// LoadAccounts returns a dataset's accounts matching q.
func (r *SQLiteDatasetRepository) LoadAccounts(ctx context.Context, datasetID string, q store.AccountQuery) ([]*store.AccountRow, error) {
	query, args, err := loadAccountsQuery(datasetID, q)
	if err != nil {
		return nil, fmt.Errorf("LoadAccounts: %w", err)
	}
	out, err := r.queryAccounts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("LoadAccounts: %w", err)
	}
	return out, nil
}

// SearchAccounts finds accounts across datasets by number substring.
func (r *SQLiteDatasetRepository) SearchAccounts(ctx context.Context, substring string, limit int) ([]*store.AccountRow, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return nil, fmt.Errorf("SearchAccounts: search term cannot be empty")
	}
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	out, err := r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM aggregated_accounts
		WHERE INSTR(account_number, @q) > 0
		ORDER BY total_amount DESC, dataset_id, position
		LIMIT @limit`,
		sql.Named("q", substring), sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("SearchAccounts: %w", err)
	}
	return out, nil
}

// DeleteDataset removes the accounts and the dataset row in one transaction.
func (r *SQLiteDatasetRepository) DeleteDataset(ctx context.Context, datasetID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteDataset: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM aggregated_accounts WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("DeleteDataset: deleting accounts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return fmt.Errorf("DeleteDataset: deleting dataset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteDataset: commit: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("dataset_id", datasetID).Msg("Dataset deleted from SQLite")
	return nil
}

// loadAccountsQuery builds the filtered account query. Named parameters use
// the same "@name" form as the BigQuery backend.
func loadAccountsQuery(datasetID string, q store.AccountQuery) (string, []any, error) {
	orderBy, err := q.OrderBy()
	if err != nil {
		return "", nil, err
	}
	filter := q.Where(datasetID)

	query := `SELECT ` + accountColumns + ` FROM aggregated_accounts WHERE ` + filter.SQL() + ` ORDER BY ` + orderBy
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	args := make([]any, 0, len(filter.Params))
	for name, v := range filter.Params {
		args = append(args, sql.Named(name, v))
	}
	return query, args, nil
}

func (r *SQLiteDatasetRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]*store.AccountRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []*store.AccountRow
	for rows.Next() {
		var a store.AccountRow
		if err := rows.Scan(
			&a.DatasetID, &a.Position, &a.AccountNumber, &a.AcknowledgementNumbers, &a.AckCount,
			&a.BankName, &a.IFSCCode, &a.Address, &a.District, &a.State,
			&a.TotalTransactions, &a.TotalAmount, &a.TotalDisputedAmount, &a.RiskScore,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (*store.DatasetRow, error) {
	var (
		ds         store.DatasetRow
		reportDate sql.NullString
		createdTS  string
	)
	if err := s.Scan(
		&ds.DatasetID, &ds.Name, &ds.Description, &ds.SourceFilename, &ds.SourceURI, &reportDate,
		&ds.AccountCount, &ds.TotalTransactions, &ds.TotalAmount, &ds.TotalDisputedAmount,
		&ds.ChecksumSHA256, &createdTS,
	); err != nil {
		return nil, err
	}

	if reportDate.Valid && reportDate.String != "" {
		d, err := civil.ParseDate(reportDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing report_date %q: %w", reportDate.String, err)
		}
		ds.ReportDate.Date = d
		ds.ReportDate.Valid = true
	}
	ts, err := time.Parse(time.RFC3339Nano, createdTS)
	if err != nil {
		return nil, fmt.Errorf("parsing created_ts %q: %w", createdTS, err)
	}
	ds.CreatedTS = ts
	return &ds, nil
}

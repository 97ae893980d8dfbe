package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/krishnaenterprise/CYBER/internal/migrations"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const migrationsTable = "schema_migrations"

// Migrator applies the embedded BigQuery migrations and records them in
// schema_migrations.
type Migrator struct {
	client *bigquery.Client
	tables Tables
}

var _ migrations.Migrator = (*Migrator)(nil)

// NewMigrator returns a migrator for the given tables.
func NewMigrator(client *bigquery.Client, t Tables) *Migrator {
	return &Migrator{client: client, tables: t}
}

// Migrator returns a migrator over the repository's tables.
func (r *BigQueryDatasetRepository) Migrator() *Migrator {
	return NewMigrator(r.client, r.tables)
}

// EnsureSchema applies every pending migration and returns how many ran.
func (r *BigQueryDatasetRepository) EnsureSchema(ctx context.Context, appliedBy string) (int, error) {
	return EnsureSchemaWithClient(ctx, r.client, r.tables, appliedBy)
}

// EnsureSchemaWithClient loads the embedded migrations for t and applies the
// pending ones.
func EnsureSchemaWithClient(ctx context.Context, client *bigquery.Client, t Tables, appliedBy string) (int, error) {
	list, err := migrations.Load(migrations.BigQuery, map[string]string{
		migrations.ProjectPlaceholder: t.ProjectID,
		migrations.DatasetPlaceholder: t.DatasetID,
	})
	if err != nil {
		return 0, fmt.Errorf("EnsureSchema: %w", err)
	}
	n, err := migrations.Apply(ctx, NewMigrator(client, t), list, appliedBy)
	if err != nil {
		return n, fmt.Errorf("EnsureSchema: %w", err)
	}
	return n, nil
}

// EnsureMigrationsTable creates the BigQuery dataset if needed and the
// schema_migrations table inside it.
func (m *Migrator) EnsureMigrationsTable(ctx context.Context) error {
	ds := m.client.DatasetInProject(m.tables.ProjectID, m.tables.DatasetID)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("EnsureMigrationsTable: reading dataset metadata: %w", err)
		}
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
			return fmt.Errorf("EnsureMigrationsTable: creating dataset: %w", err)
		}
	}

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.tables.Ref(migrationsTable))

	if err := runQuery(ctx, m.client.Query(sql)); err != nil {
		return fmt.Errorf("EnsureMigrationsTable: %w", err)
	}
	return nil
}

// AppliedMigrations lists recorded migrations in version order. A missing
// table reads as none applied.
func (m *Migrator) AppliedMigrations(ctx context.Context) ([]migrations.AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.tables.Ref(migrationsTable))

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("AppliedMigrations: reading query: %w", err)
	}

	var applied []migrations.AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("AppliedMigrations: iterating: %w", err)
		}
		applied = append(applied, migrations.AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// ApplyMigration runs the migration and then records it.
func (m *Migrator) ApplyMigration(ctx context.Context, mig migrations.Migration, appliedBy string) error {
	if err := runQuery(ctx, m.client.Query(mig.SQL)); err != nil {
		return fmt.Errorf("ApplyMigration: executing: %w", err)
	}

	q := m.client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.tables.Ref(migrationsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("ApplyMigration: recording: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "Not found")
}

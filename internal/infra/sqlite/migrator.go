package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/migrations"
)

// Migrator applies the embedded SQLite migrations.
type Migrator struct {
	db *sql.DB
}

var _ migrations.Migrator = (*Migrator)(nil)

// NewMigrator returns a migrator over db.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrator returns a migrator over the repository's database.
func (r *SQLiteDatasetRepository) Migrator() *Migrator {
	return NewMigrator(r.db)
}

// EnsureSchema applies every pending migration and returns how many ran.
func (r *SQLiteDatasetRepository) EnsureSchema(ctx context.Context, appliedBy string) (int, error) {
	list, err := migrations.Load(migrations.SQLite, nil)
	if err != nil {
		return 0, fmt.Errorf("EnsureSchema: %w", err)
	}
	n, err := migrations.Apply(ctx, NewMigrator(r.db), list, appliedBy)
	if err != nil {
		return n, fmt.Errorf("EnsureSchema: %w", err)
	}
	return n, nil
}

func (m *Migrator) EnsureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			checksum   TEXT,
			applied_by TEXT
		)`)
	if err != nil {
		return fmt.Errorf("EnsureMigrationsTable: %w", err)
	}
	return nil
}

func (m *Migrator) AppliedMigrations(ctx context.Context) ([]migrations.AppliedMigration, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT version, name, applied_at, checksum, applied_by FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	defer rows.Close()

	var applied []migrations.AppliedMigration
	for rows.Next() {
		var (
			am                  migrations.AppliedMigration
			appliedAt           string
			checksum, appliedBy sql.NullString
		)
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &checksum, &appliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scan: %w", err)
		}
		am.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt)
		am.Checksum = checksum.String
		am.AppliedBy = appliedBy.String
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AppliedMigrations: iterating: %w", err)
	}
	return applied, nil
}

// ApplyMigration executes the migration and records it atomically.
func (m *Migrator) ApplyMigration(ctx context.Context, mig migrations.Migration, appliedBy string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ApplyMigration: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("ApplyMigration: executing: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by) VALUES (?, ?, ?, ?, ?)`,
		mig.Version, mig.Name, time.Now().UTC().Format(time.RFC3339Nano), mig.Checksum, appliedBy,
	); err != nil {
		return fmt.Errorf("ApplyMigration: recording: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ApplyMigration: commit: %w", err)
	}
	return nil
}

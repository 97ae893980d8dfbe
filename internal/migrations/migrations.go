// Package migrations holds the versioned schema for each storage backend and
// applies whatever has not yet been recorded in schema_migrations.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/logger"
)

//go:embed bigquery/*.sql sqlite/*.sql
var files embed.FS

// Backends with embedded migrations.
const (
	BigQuery = "bigquery"
	SQLite   = "sqlite"
)

// Placeholders substituted in BigQuery migrations.
const (
	ProjectPlaceholder = "{{PROJECT_ID}}"
	DatasetPlaceholder = "{{DATASET_ID}}"
)

var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single versioned schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	// Checksum covers the file before placeholder substitution, so the same
	// migration applied to different projects records the same value.
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrator runs migrations against one backend.
type Migrator interface {
	EnsureMigrationsTable(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
	// ApplyMigration executes m and records it in schema_migrations.
	ApplyMigration(ctx context.Context, m Migration, appliedBy string) error
}

// ParseFilename splits "0001_create_datasets.sql" into version and name.
func ParseFilename(name string) (int, string, error) {
	matches := filenamePattern.FindStringSubmatch(name)
	if matches == nil {
		return 0, "", fmt.Errorf("invalid migration filename %q", name)
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", fmt.Errorf("invalid migration version in %q: %w", name, err)
	}
	return version, matches[2], nil
}

// Load reads the embedded migrations of backend in version order, replacing
// each key of replacements with its value.
func Load(backend string, replacements map[string]string) ([]Migration, error) {
	return load(files, backend, replacements)
}

func load(fsys fs.FS, dir string, replacements map[string]string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("Load: reading %s migrations: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, err := ParseFilename(e.Name())
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("Load: version %04d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", e.Name(), err)
		}

		sql := string(content)
		for k, v := range replacements {
			sql = strings.ReplaceAll(sql, k, v)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Apply runs every migration whose version is not yet recorded and returns
// how many it applied. A recorded migration whose checksum no longer matches
// is logged but not re-run.
func Apply(ctx context.Context, m Migrator, migrations []Migration, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("Apply: ensuring schema_migrations: %w", err)
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Apply: reading applied migrations: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, mig := range migrations {
		if am, ok := byVersion[mig.Version]; ok {
			if am.Checksum != "" && am.Checksum != mig.Checksum {
				log.Warn().
					Int("version", mig.Version).
					Str("name", mig.Name).
					Msg("Applied migration has changed since it was recorded")
			}
			log.Debug().Int("version", mig.Version).Str("name", mig.Name).Msg("Migration already applied")
			continue
		}

		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying migration")
		if err := m.ApplyMigration(ctx, mig, appliedBy); err != nil {
			return count, fmt.Errorf("Apply: %04d_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Pending returns the migrations whose version is not in applied, in order.
func Pending(migrations []Migration, applied []AppliedMigration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		done[am.Version] = true
	}
	var out []Migration
	for _, m := range migrations {
		if !done[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

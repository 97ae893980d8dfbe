package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMigrator struct {
	applied []AppliedMigration
	ran     []int
	failOn  int
	ensured bool
	readErr error
}

func (m *mockMigrator) EnsureMigrationsTable(ctx context.Context) error {
	m.ensured = true
	return nil
}

func (m *mockMigrator) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	return m.applied, m.readErr
}

func (m *mockMigrator) ApplyMigration(ctx context.Context, mig Migration, appliedBy string) error {
	if mig.Version == m.failOn {
		return errors.New("syntax error")
	}
	m.ran = append(m.ran, mig.Version)
	m.applied = append(m.applied, AppliedMigration{Version: mig.Version, Name: mig.Name, Checksum: mig.Checksum, AppliedBy: appliedBy})
	return nil
}

func TestParseFilename(t *testing.T) {
	v, name, err := ParseFilename("0002_create_aggregated_accounts.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, "create_aggregated_accounts", name)

	for _, bad := range []string{"2_x.sql", "0001-x.sql", "0001_x.txt", "README.md"} {
		_, _, err := ParseFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_Embedded(t *testing.T) {
	for _, backend := range []string{BigQuery, SQLite} {
		t.Run(backend, func(t *testing.T) {
			list, err := Load(backend, map[string]string{
				ProjectPlaceholder: "proj",
				DatasetPlaceholder: "fraud",
			})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, 1, list[0].Version)
			assert.Equal(t, "create_datasets", list[0].Name)
			assert.Equal(t, 2, list[1].Version)
			for _, m := range list {
				assert.NotContains(t, m.SQL, "{{")
				assert.Len(t, m.Checksum, 64)
			}
		})
	}

	list, err := Load(BigQuery, map[string]string{ProjectPlaceholder: "proj", DatasetPlaceholder: "fraud"})
	require.NoError(t, err)
	assert.Contains(t, list[1].SQL, "`proj.fraud.aggregated_accounts`")

	_, err = Load("postgres", nil)
	assert.Error(t, err)
}

func TestLoad_ChecksumIgnoresReplacements(t *testing.T) {
	a, err := Load(BigQuery, map[string]string{ProjectPlaceholder: "a"})
	require.NoError(t, err)
	b, err := Load(BigQuery, map[string]string{ProjectPlaceholder: "b"})
	require.NoError(t, err)
	assert.Equal(t, a[0].Checksum, b[0].Checksum)
	assert.NotEqual(t, a[0].SQL, b[0].SQL)
}

func TestLoad_Validation(t *testing.T) {
	fsys := fstest.MapFS{
		"x/0002_b.sql": {Data: []byte("SELECT 2")},
		"x/0001_a.sql": {Data: []byte("SELECT 1")},
	}
	list, err := load(fsys, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, []int{list[0].Version, list[1].Version})

	fsys["x/0002_dup.sql"] = &fstest.MapFile{Data: []byte("SELECT 3")}
	_, err = load(fsys, "x", nil)
	assert.ErrorContains(t, err, "version 0002")

	bad := fstest.MapFS{"x/notes.txt": {Data: []byte("")}}
	_, err = load(bad, "x", nil)
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	list, err := Load(SQLite, nil)
	require.NoError(t, err)

	m := &mockMigrator{}
	n, err := Apply(context.Background(), m, list, "test")
	require.NoError(t, err)
	assert.True(t, m.ensured)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, m.ran)
	assert.Equal(t, "test", m.applied[0].AppliedBy)

	m.ran = nil
	n, err = Apply(context.Background(), m, list, "test")
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
	assert.Empty(t, m.ran)
}

func TestApply_Errors(t *testing.T) {
	list, err := Load(SQLite, nil)
	require.NoError(t, err)

	m := &mockMigrator{failOn: 2}
	n, err := Apply(context.Background(), m, list, "test")
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "0002_create_aggregated_accounts"))

	m = &mockMigrator{readErr: errors.New("no access")}
	_, err = Apply(context.Background(), m, list, "test")
	assert.ErrorContains(t, err, "no access")
}

func TestPending(t *testing.T) {
	list := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	got := Pending(list, []AppliedMigration{{Version: 1}, {Version: 3}})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)

	assert.Len(t, Pending(list, nil), 3)
	assert.Empty(t, Pending(list, []AppliedMigration{{Version: 1}, {Version: 2}, {Version: 3}}))
}

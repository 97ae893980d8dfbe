package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/config"
	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRepository_SQLiteCreatesDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nested", "fraud.db")

	repo, err := OpenRepository(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	datasets, err := repo.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestOpenRepository_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "postgres"
	_, err := OpenRepository(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOptionalCollaborators(t *testing.T) {
	cfg := config.Default()

	storage, err := OpenStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, storage)
	assert.Nil(t, NotionSyncer(cfg))

	cfg.Notion.Token = "secret"
	cfg.Notion.DatabaseID = "db-1"
	assert.NotNil(t, NotionSyncer(cfg))
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.ReportFormats = []string{"csv", "txt"}

	pc, err := PipelineConfig(cfg, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, pc.Storage)
	assert.Nil(t, pc.Notion)
	assert.Equal(t, []report.Format{report.FormatCSV, report.FormatAudit}, pc.ReportFormats)
	assert.Equal(t, int64(200<<20), pc.Limits.MaxFileSize)

	cfg.Processing.ReportFormats = []string{"docx"}
	_, err = PipelineConfig(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestQueueConfig(t *testing.T) {
	qc := QueueConfig(config.Default())
	assert.Equal(t, 2, qc.Workers)
	assert.Equal(t, 100, qc.BufferSize)
	assert.Equal(t, 5*time.Second, qc.RetryBackoff)
}

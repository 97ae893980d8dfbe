package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ProcessDatasetJob {
	t.Helper()
	var job *jobs.ProcessDatasetJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func newTestQueue(store *Store) *Queue {
	return NewQueue(QueueConfig{BufferSize: 10, Workers: 2, RetryBackoff: 5 * time.Millisecond}, store)
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.ProcessDatasetJob)
		j.Result = &jobs.JobResult{AccountCount: 7}
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.ProcessDatasetJob{DatasetID: "ds-1", SourceURI: "gs://b/f.xlsx"}
	require.NoError(t, q.PublishProcessDataset(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.DefaultMaxRetries, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Result)
	assert.Equal(t, 7, done.Result.AccountCount)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.ProcessDatasetJob{DatasetID: "ds-1"}
	require.NoError(t, q.PublishProcessDataset(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_PermanentErrorNotRetried(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		calls.Add(1)
		return jobs.Permanent(errors.New("missing required columns: amount"))
	}))
	defer q.Stop(ctx)

	job := &jobs.ProcessDatasetJob{DatasetID: "ds-1"}
	require.NoError(t, q.PublishProcessDataset(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "missing required columns: amount", failed.Error)
	assert.Zero(t, failed.RetryCount)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_ExhaustsRetries(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("backend down")
	}))
	defer q.Stop(ctx)

	job := &jobs.ProcessDatasetJob{DatasetID: "ds-1", MaxRetries: 2}
	require.NoError(t, q.PublishProcessDataset(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "backend down", failed.Error)
}

func TestQueue_PanicFailsJob(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		panic("boom")
	}))
	defer q.Stop(ctx)

	job := &jobs.ProcessDatasetJob{DatasetID: "ds-1"}
	require.NoError(t, q.PublishProcessDataset(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "panic: boom")
}

func TestQueue_Closed(t *testing.T) {
	q := newTestQueue(nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "idempotent")

	assert.Error(t, q.PublishProcessDataset(context.Background(), &jobs.ProcessDatasetJob{}))
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
}

func TestStore(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveJob(ctx, &jobs.ProcessDatasetJob{
			JobID:     id,
			DatasetID: map[bool]string{true: "ds-1", false: "ds-2"}[i < 2],
			Status:    jobs.JobStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Error(t, s.SaveJob(ctx, &jobs.ProcessDatasetJob{}))

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID, "newest first")

	byDataset, err := s.ListJobs(ctx, jobs.JobFilter{DatasetID: "ds-1"})
	require.NoError(t, err)
	assert.Len(t, byDataset, 2)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)

	// Returned jobs are copies.
	got, err := s.GetJob(ctx, "b")
	require.NoError(t, err)
	got.Status = jobs.JobStatusCompleted
	again, _ := s.GetJob(ctx, "b")
	assert.Equal(t, jobs.JobStatusPending, again.Status)
}

package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessDataset represents a spreadsheet processing job.
	JobTypeProcessDataset JobType = "process_dataset"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries applies when a job does not set MaxRetries.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by a JobStore for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ProcessDatasetJob processes one uploaded spreadsheet into a stored dataset.
type ProcessDatasetJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// DatasetID is assigned up front so callers can poll for the dataset.
	DatasetID   string `json:"dataset_id"`
	DatasetName string `json:"dataset_name"`
	Description string `json:"description,omitempty"`
	// ReportDate is "YYYY-MM-DD" or empty.
	ReportDate string `json:"report_date,omitempty"`

	// SourceURI is the gs:// URI of the uploaded file.
	SourceURI string `json:"source_uri"`
	Filename  string `json:"filename"`

	// Overrides maps canonical field names to source headers. An empty
	// header unassigns the field.
	Overrides map[string]string `json:"overrides,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	Result *JobResult `json:"result,omitempty"`
}

// JobResult summarises a completed job.
type JobResult struct {
	AccountCount      int               `json:"account_count"`
	TotalTransactions int               `json:"total_transactions"`
	TotalAmount       float64           `json:"total_amount"`
	Warnings          int               `json:"warnings"`
	ReportURIs        map[string]string `json:"report_uris,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ProcessDatasetJob) GetID() string        { return j.JobID }
func (j *ProcessDatasetJob) GetType() JobType     { return JobTypeProcessDataset }
func (j *ProcessDatasetJob) GetStatus() JobStatus { return j.Status }

// Clone returns a deep copy of the job.
func (j *ProcessDatasetJob) Clone() *ProcessDatasetJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Overrides != nil {
		c.Overrides = make(map[string]string, len(j.Overrides))
		for k, v := range j.Overrides {
			c.Overrides[k] = v
		}
	}
	if j.Result != nil {
		r := *j.Result
		if j.Result.ReportURIs != nil {
			r.ReportURIs = make(map[string]string, len(j.Result.ReportURIs))
			for k, v := range j.Result.ReportURIs {
				r.ReportURIs[k] = v
			}
		}
		c.Result = &r
	}
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessDataset enqueues a processing job.
	PublishProcessDataset(ctx context.Context, job *ProcessDatasetJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried;
// errors wrapped with Permanent are not retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessDatasetJob) error

	// GetJob retrieves a job by ID, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ProcessDatasetJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessDatasetJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	DatasetID string
	Status    JobStatus
	Limit     int
	Offset    int
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

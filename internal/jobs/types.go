package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExportLedger copies a user's ledger to an export target.
	JobTypeExportLedger JobType = "export_ledger"
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

// ExportTarget names where a ledger export is written.
type ExportTarget string

const (
	// ExportTargetGCS writes a JSON snapshot to Cloud Storage.
	ExportTargetGCS ExportTarget = "gcs"
	// ExportTargetBigQuery inserts rows into BigQuery tables.
	ExportTargetBigQuery ExportTarget = "bigquery"
)

// Valid reports whether t is a known target.
func (t ExportTarget) Valid() bool {
	return t == ExportTargetGCS || t == ExportTargetBigQuery
}

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// ExportLedgerJob represents a job that exports one user's ledger.
type ExportLedgerJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID owns the exported ledger.
	UserID string `json:"user_id"`

	// Target is where the ledger is written.
	Target ExportTarget `json:"target"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Location is the gs:// URI or dataset written by a completed job.
	Location string `json:"location,omitempty"`

	AccountCount     int `json:"account_count"`
	TransactionCount int `json:"transaction_count"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ExportLedgerJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ExportLedgerJob) GetType() JobType {
	return JobTypeExportLedger
}

// GetStatus implements the Job interface.
func (j *ExportLedgerJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues export jobs.
type Publisher interface {
	// PublishExport enqueues a ledger export job.
	PublishExport(ctx context.Context, job *ExportLedgerJob) error

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
// It should return an error if the job failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExportLedgerJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ExportLedgerJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExportLedgerJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by owner.
	UserID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

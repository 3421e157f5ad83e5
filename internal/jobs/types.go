package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// Status represents the current status of an analysis job.
// Transitions are monotonic: pending -> processing -> completed | failed.
type Status string

const (
	// StatusPending indicates the job is waiting to be processed.
	StatusPending Status = "pending"
	// StatusProcessing indicates the job is currently being processed.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the job completed successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job failed terminally.
	StatusFailed Status = "failed"
)

// Priority orders jobs within the queue. Lower value is served first.
type Priority int

const (
	// PriorityUser is for user-facing submissions.
	PriorityUser Priority = 0
	// PriorityAdmin is for administrative re-runs.
	PriorityAdmin Priority = 1
)

// AnalysisJob represents one end-to-end statement analysis request.
type AnalysisJob struct {
	// JobID is the unique, externally visible identifier.
	JobID string `json:"job_id"`

	// UserID is the owner of the job.
	UserID string `json:"user_id"`

	// FileName and FileType describe the uploaded statement.
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`

	// SourceURI is the gs:// location of the uploaded bytes. If empty,
	// FileData carries the bytes inline.
	SourceURI string `json:"source_uri,omitempty"`
	FileData  []byte `json:"-"`

	// Password unlocks encrypted source documents. It is cleared after
	// parsing and never persisted.
	Password string `json:"-"`

	// ReportName and ReferenceID are display metadata.
	ReportName  string `json:"report_name,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`

	// Status and Progress are the externally observable job state.
	// Progress is non-decreasing while Status is processing.
	Status   Status `json:"status"`
	Progress int    `json:"progress"`

	// Error is set only when the job has failed.
	Error string `json:"error,omitempty"`

	// Attempts counts executions so far; MaxAttempts bounds retries.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	// StallCount counts liveness-timeout requeues. A job is requeued on
	// its first stall and failed on the second.
	StallCount int `json:"stall_count"`

	Priority Priority `json:"priority"`

	// Version supports optimistic concurrency on status writes.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// HeartbeatAt is the last liveness signal from the executing worker.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`

	// Metadata holds every stage's result. Written atomically alongside
	// the completed transition, never before.
	Metadata *domain.AnalysisMetadata `json:"metadata,omitempty"`
}

// Terminal reports whether the job has reached an immutable state.
func (j *AnalysisJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Handler processes one job. Returning a permanent error (see Permanent)
// fails the job without consuming retry attempts.
type Handler func(ctx context.Context, job *AnalysisJob) error

// Publisher accepts job submissions.
type Publisher interface {
	// Submit enqueues a job. Submitting an existing JobID is a no-op
	// that returns the existing job's ID.
	Submit(ctx context.Context, job *AnalysisJob) (string, error)

	// Close releases queue resources.
	Close() error
}

// Consumer pulls jobs from a queue and drives them through a Handler.
type Consumer interface {
	// Start begins consuming jobs. The handler is invoked concurrently
	// up to the configured worker count.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// JobPatch is a partial update applied to a stored job. Nil fields are
// left untouched.
type JobPatch struct {
	Status      *Status
	Progress    *int
	Error       *string
	Attempts    *int
	StallCount  *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	HeartbeatAt *time.Time
	Metadata    *domain.AnalysisMetadata
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

// QueueStats is a per-state count snapshot for operational visibility.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Store is the durable record of job state. It is the single source of
// truth: implementations must serialize concurrent status writes per
// job, which UpdateJob enforces through the version check.
type Store interface {
	// CreateJob persists a new job. Returns ErrJobExists if the JobID
	// is already present.
	CreateJob(ctx context.Context, job *AnalysisJob) error

	// GetJob retrieves a job by ID. Returns ErrJobNotFound if absent.
	GetJob(ctx context.Context, jobID string) (*AnalysisJob, error)

	// UpdateJob applies a patch. When expectedVersion >= 0 the update
	// fails with ErrVersionConflict unless the stored version matches.
	// Returns the updated job.
	UpdateJob(ctx context.Context, jobID string, expectedVersion int64, patch JobPatch) (*AnalysisJob, error)

	// ListJobs retrieves jobs matching the filter.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalysisJob, error)

	// QueueStats returns per-state counts.
	QueueStats(ctx context.Context) (QueueStats, error)
}

// Sentinel errors for store and queue operations.
var (
	ErrJobExists       = errors.New("job already exists")
	ErrJobNotFound     = errors.New("job not found")
	ErrVersionConflict = errors.New("job version conflict")
	ErrQueueClosed     = errors.New("queue is closed")
)

// permanentError marks failures that retrying cannot fix (bad password,
// empty extraction, malformed input).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue fails the job immediately instead of
// retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked
// permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// StageError carries the originating stage name so operators can tell a
// parser failure from a scoring failure.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

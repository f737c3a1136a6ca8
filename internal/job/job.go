// Package job tracks long-running analysis requests: their lifecycle status,
// an append-only progress log and a durable cancellation flag.
package job

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrNotFound is returned by mutators addressed to an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrCancelled unwinds a worker once it observes a cancellation request.
	ErrCancelled = errors.New("job cancelled by user")
)

// ProgressEntry is one line of a job's progress log.
type ProgressEntry struct {
	Seq       int            `json:"seq"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Job is a read-only snapshot of a job's state.
type Job struct {
	ID        string          `json:"id"`
	Content   string          `json:"-"`
	Status    Status          `json:"status"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Progress  []ProgressEntry `json:"progress"`
	Cancelled bool            `json:"cancel_requested"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Event is pushed to progress subscribers. Exactly one of Entry or Status is
// meaningful: Entry for a new log line, Status for a lifecycle change.
type Event struct {
	JobID  string         `json:"job_id"`
	Entry  *ProgressEntry `json:"entry,omitempty"`
	Status Status         `json:"status,omitempty"`
}

// Observer receives every mutation after it is applied. Implementations must
// not block.
type Observer interface {
	OnProgress(jobID string, entry ProgressEntry)
	OnStatus(jobID string, status Status)
}

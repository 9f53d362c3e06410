package job

import (
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting to be claimed.
	StateQueued State = "queued"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateSucceeded means the job finished successfully.
	StateSucceeded State = "succeeded"
	// StateDiscarded means a discard handler ended the job.
	StateDiscarded State = "discarded"
	// StateErrored means the job failed terminally (unhandled error or
	// retries exhausted).
	StateErrored State = "errored"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateDiscarded || s == StateErrored
}

// Job represents a durable unit of work with scheduling and lifecycle state.
//
// Invariants maintained by the executor: FinishedAt is set exactly when
// State becomes terminal and is immutable afterwards; ExecutionsCount
// equals the number of owned Execution rows; Error and ErrorEvent are
// empty exactly when the latest execution succeeded.
type Job struct {
	steady.Entity

	ID             id.JobID      `json:"id"`
	Name           string        `json:"name"`
	Queue          string        `json:"queue"`
	Payload        []byte        `json:"payload"`
	State          State         `json:"state"`
	Priority       int           `json:"priority"`
	ScheduledAt    time.Time     `json:"scheduled_at"`
	ConcurrencyKey string        `json:"concurrency_key,omitempty"`
	WorkerID       id.WorkerID   `json:"worker_id,omitempty"`
	PerformedAt    *time.Time    `json:"performed_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`

	// ExecutionsCount counts owned executions; it increases monotonically,
	// one per attempt, across dispatches.
	ExecutionsCount int `json:"executions_count"`

	// Error holds the latest attempt's formatted error ("<Kind>: <message>"),
	// empty on success. ErrorEvent mirrors the latest execution's event.
	Error      string     `json:"error,omitempty"`
	ErrorEvent ErrorEvent `json:"error_event,omitempty"`

	// Timeout bounds a single perform invocation. Zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// LockKey returns the advisory lock key for this job. Jobs sharing a
// concurrency key are mutually exclusive with each other; otherwise the
// job is exclusive only with itself.
func (j *Job) LockKey() string {
	if j.ConcurrencyKey != "" {
		return "concurrency:" + j.ConcurrencyKey
	}
	return "job:" + j.ID.String()
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.FinishedAt != nil
}

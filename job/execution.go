package job

import (
	"time"

	"github.com/xraph/steady/id"
)

// Status is the per-attempt outcome of an execution.
type Status string

const (
	// StatusRunning means the attempt is in progress.
	StatusRunning Status = "running"
	// StatusSucceeded means the attempt completed without error.
	StatusSucceeded Status = "succeeded"
	// StatusDiscarded means the attempt ended without success. This is
	// per-attempt bookkeeping, distinct from the job-level discard policy:
	// a retried attempt is also "discarded" at the execution level.
	StatusDiscarded Status = "discarded"
)

// ErrorEvent classifies how an attempt's error was handled.
type ErrorEvent string

const (
	// EventHandled means a rescue handler consumed the error.
	EventHandled ErrorEvent = "handled"
	// EventRetried means a retry handler scheduled another attempt.
	EventRetried ErrorEvent = "retried"
	// EventRetryStopped means a retry handler exhausted its attempts.
	EventRetryStopped ErrorEvent = "retry_stopped"
	// EventDiscarded means a discard handler ended the job.
	EventDiscarded ErrorEvent = "discarded"
	// EventUnhandled means no handler matched the error.
	EventUnhandled ErrorEvent = "unhandled"
)

// Execution is one attempt at running a job. A job exclusively owns its
// executions; executions of one job are totally ordered by CreatedAt and
// their sequence numbers match creation order.
type Execution struct {
	ID         id.ExecutionID `json:"id"`
	JobID      id.JobID       `json:"job_id"`
	Seq        int            `json:"seq"` // 1-based
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	ErrorEvent ErrorEvent     `json:"error_event,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

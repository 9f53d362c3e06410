// Package ext defines the extension system for steady.
// Extensions are notified of lifecycle events (job enqueued, execution
// started, job discarded, etc.) and can react to them — logging, metrics,
// auditing, and so on.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/steady/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// ExecutionStarted is called when an attempt at running a job begins.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, j *job.Job, e *job.Execution) error
}

// ExecutionFinished is called after an attempt ends, whatever its outcome.
type ExecutionFinished interface {
	OnExecutionFinished(ctx context.Context, j *job.Job, e *job.Execution, elapsed time.Duration) error
}

// JobSucceeded is called when a job reaches the succeeded state.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job) error
}

// JobRetryScheduled is called when a failed attempt schedules another one.
type JobRetryScheduled interface {
	OnJobRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDiscarded is called when a discard handler ends a job.
type JobDiscarded interface {
	OnJobDiscarded(ctx context.Context, j *job.Job, err error) error
}

// JobErrored is called when a job fails terminally (unhandled error or
// retries exhausted).
type JobErrored interface {
	OnJobErrored(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronFired is called after a cron entry enqueues its job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, j *job.Job) error
}

// Shutdown is called during graceful capsule shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

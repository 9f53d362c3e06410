package job

import (
	"context"

	"github.com/xraph/steady/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract: durable Job/Execution records,
// the due-job query, and advisory locks. Implementations must be safe
// under concurrent callers from multiple workers and processes.
//
// Advisory locks are tied to the store's lifetime: closing the store (or
// losing its connection) releases or expires every lock it holds, so a
// future poller can reclaim jobs a crashed worker left running.
type Store interface {
	// CreateJob persists a new job in queued state.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob atomically persists changes to an existing job's mutable
	// fields.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job and the executions it owns.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// DueJobs returns up to limit queued jobs from the given queues whose
	// scheduled time has arrived, ordered by priority (descending) then
	// ScheduledAt (ascending). It does not claim them; claiming is the
	// advisory lock's job.
	DueJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// CreateExecution persists a new execution attempt for a job.
	CreateExecution(ctx context.Context, e *Execution) error

	// UpdateExecution persists changes to an existing execution.
	UpdateExecution(ctx context.Context, e *Execution) error

	// ListExecutions returns a job's executions ordered by CreatedAt.
	ListExecutions(ctx context.Context, jobID id.JobID) ([]*Execution, error)

	// AcquireLock attempts to take the advisory lock for the given key
	// (see Job.LockKey). It returns false without error when another
	// holder has it.
	AcquireLock(ctx context.Context, key string) (bool, error)

	// ReleaseLock releases an advisory lock held by this store.
	// Releasing a lock that is not held is a no-op.
	ReleaseLock(ctx context.Context, key string) error
}

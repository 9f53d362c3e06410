package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/steady/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type executionStartedEntry struct {
	name string
	hook ExecutionStarted
}

type executionFinishedEntry struct {
	name string
	hook ExecutionFinished
}

type jobSucceededEntry struct {
	name string
	hook JobSucceeded
}

type jobRetryScheduledEntry struct {
	name string
	hook JobRetryScheduled
}

type jobDiscardedEntry struct {
	name string
	hook JobDiscarded
}

type jobErroredEntry struct {
	name string
	hook JobErrored
}

type cronFiredEntry struct {
	name string
	hook CronFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobEnqueued       []jobEnqueuedEntry
	executionStarted  []executionStartedEntry
	executionFinished []executionFinishedEntry
	jobSucceeded      []jobSucceededEntry
	jobRetryScheduled []jobRetryScheduledEntry
	jobDiscarded      []jobDiscardedEntry
	jobErrored        []jobErroredEntry
	cronFired         []cronFiredEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, executionStartedEntry{name, h})
	}
	if h, ok := e.(ExecutionFinished); ok {
		r.executionFinished = append(r.executionFinished, executionFinishedEntry{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, jobSucceededEntry{name, h})
	}
	if h, ok := e.(JobRetryScheduled); ok {
		r.jobRetryScheduled = append(r.jobRetryScheduled, jobRetryScheduledEntry{name, h})
	}
	if h, ok := e.(JobDiscarded); ok {
		r.jobDiscarded = append(r.jobDiscarded, jobDiscardedEntry{name, h})
	}
	if h, ok := e.(JobErrored); ok {
		r.jobErrored = append(r.jobErrored, jobErroredEntry{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, cronFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitExecutionStarted notifies all extensions that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, j *job.Job, exec *job.Execution) {
	for _, e := range r.executionStarted {
		if err := e.hook.OnExecutionStarted(ctx, j, exec); err != nil {
			r.logHookError("OnExecutionStarted", e.name, err)
		}
	}
}

// EmitExecutionFinished notifies all extensions that implement ExecutionFinished.
func (r *Registry) EmitExecutionFinished(ctx context.Context, j *job.Job, exec *job.Execution, elapsed time.Duration) {
	for _, e := range r.executionFinished {
		if err := e.hook.OnExecutionFinished(ctx, j, exec, elapsed); err != nil {
			r.logHookError("OnExecutionFinished", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobRetryScheduled notifies all extensions that implement JobRetryScheduled.
func (r *Registry) EmitJobRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetryScheduled {
		if err := e.hook.OnJobRetryScheduled(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetryScheduled", e.name, err)
		}
	}
}

// EmitJobDiscarded notifies all extensions that implement JobDiscarded.
func (r *Registry) EmitJobDiscarded(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDiscarded {
		if err := e.hook.OnJobDiscarded(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDiscarded", e.name, err)
		}
	}
}

// EmitJobErrored notifies all extensions that implement JobErrored.
func (r *Registry) EmitJobErrored(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobErrored {
		if err := e.hook.OnJobErrored(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobErrored", e.name, err)
		}
	}
}

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, j *job.Job) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, j); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate: an
// extension must not be able to affect job processing.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}

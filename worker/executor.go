// Package worker provides the job execution engine — an Executor that
// drives a claimed job through attempts, handler resolution, and state
// updates, and a Capsule that manages the poller and concurrent worker
// goroutines around it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/backoff"
	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
	"github.com/xraph/steady/middleware"
)

// Executor runs one dispatch of a claimed job: it creates an execution
// per attempt, runs the perform function through middleware, resolves
// the definition's error handlers, and advances the job until the
// dispatch ends — success, discard, terminal error, or a rescheduled
// retry.
//
// The caller holds the job's advisory lock for the whole dispatch and
// releases it after Dispatch returns.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	backoff    backoff.Strategy
	reporter   steady.ErrorReporter
	mw         middleware.Middleware
	logger     *slog.Logger

	// blockingWaits makes retry waits block the calling goroutine
	// (inline execution). When false, a retry wait ends the dispatch and
	// reschedules the job for a future poll.
	blockingWaits bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBlockingWaits makes retry waits block the dispatching goroutine
// instead of rescheduling the job. Used for inline execution, where the
// enqueuing caller runs the job to completion.
func WithBlockingWaits() ExecutorOption {
	return func(e *Executor) { e.blockingWaits = true }
}

// WithMiddleware sets the middleware chain wrapped around every attempt.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	reporter steady.ErrorReporter,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		backoff:    bo,
		reporter:   reporter,
		mw:         middleware.Chain(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch runs a claimed job until the dispatch ends. Attempts iterate
// in a loop rather than recurse, so a long retry series costs constant
// stack.
//
// Return values: nil when the dispatch reached a policy outcome
// (success, discard, rescheduled retry); non-nil when the job failed
// terminally (unhandled error, retries exhausted, failed rescue) or a
// store operation failed mid-dispatch.
func (e *Executor) Dispatch(ctx context.Context, j *job.Job) error {
	def, ok := e.registry.Get(j.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", steady.ErrDefinitionNotFound, j.Name)
		return e.finishUnhandled(ctx, j, nil, err)
	}

	for {
		exec, err := e.beginAttempt(ctx, j)
		if err != nil {
			return err
		}

		start := time.Now()
		performErr := e.mw(ctx, j, func(ctx context.Context) error {
			return def.Perform(ctx, j.Payload)
		})
		elapsed := time.Since(start)

		if performErr == nil {
			return e.finishSuccess(ctx, j, exec, elapsed)
		}

		e.extensions.EmitExecutionFinished(ctx, j, exec, elapsed)

		handler, matched := job.Resolve(def.Handlers, performErr)
		if !matched {
			return e.finishUnhandled(ctx, j, exec, performErr)
		}

		switch handler.Action {
		case job.ActionDiscard:
			return e.finishDiscard(ctx, j, exec, performErr)

		case job.ActionRetry:
			again, err := e.applyRetry(ctx, j, exec, handler, performErr)
			if !again {
				return err
			}

		case job.ActionRescue:
			again, err := e.applyRescue(ctx, j, exec, handler, performErr)
			if !again {
				return err
			}
		}
	}
}

// beginAttempt creates the next execution row, moves the job to running,
// and emits ExecutionStarted.
func (e *Executor) beginAttempt(ctx context.Context, j *job.Job) (*job.Execution, error) {
	now := time.Now().UTC()

	exec := &job.Execution{
		ID:        id.NewExecutionID(),
		JobID:     j.ID,
		Seq:       j.ExecutionsCount + 1,
		Status:    job.StatusRunning,
		CreatedAt: now,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution for job %s: %w", j.ID, err)
	}

	j.ExecutionsCount++
	j.State = job.StateRunning
	j.UpdatedAt = now
	if j.PerformedAt == nil {
		j.PerformedAt = &now
	}
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("update job %s before attempt: %w", j.ID, err)
	}

	e.extensions.EmitExecutionStarted(ctx, j, exec)

	e.logger.Debug("attempt started",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", exec.Seq),
	)

	return exec, nil
}

// finishSuccess closes the execution and the job as succeeded.
func (e *Executor) finishSuccess(ctx context.Context, j *job.Job, exec *job.Execution, elapsed time.Duration) error {
	now := time.Now().UTC()

	exec.Status = job.StatusSucceeded
	exec.FinishedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}

	j.State = job.StateSucceeded
	j.Error = ""
	j.ErrorEvent = ""
	j.FinishedAt = &now
	j.UpdatedAt = now
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("update job %s after success: %w", j.ID, err)
	}

	e.extensions.EmitExecutionFinished(ctx, j, exec, elapsed)
	e.extensions.EmitJobSucceeded(ctx, j)

	e.logger.Info("job succeeded",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.ExecutionsCount),
	)

	return nil
}

// finishUnhandled ends the job in the errored state because no handler
// matched (or no definition exists). This is the one path, along with
// exhausted retries, where the error reporter fires.
func (e *Executor) finishUnhandled(ctx context.Context, j *job.Job, exec *job.Execution, cause error) error {
	if err := e.finishTerminalError(ctx, j, exec, cause, job.EventUnhandled); err != nil {
		return err
	}

	e.reporter.Report(e.logger, cause)
	e.extensions.EmitJobErrored(ctx, j, cause)

	e.logger.Warn("job errored: no handler matched",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("error", j.Error),
	)

	return cause
}

// finishDiscard ends the job in the discarded state. Discarded jobs are
// a policy outcome, never reported.
func (e *Executor) finishDiscard(ctx context.Context, j *job.Job, exec *job.Execution, cause error) error {
	now := time.Now().UTC()
	formatted := job.FormatError(cause)

	exec.Status = job.StatusDiscarded
	exec.Error = formatted
	exec.ErrorEvent = job.EventDiscarded
	exec.FinishedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}

	j.State = job.StateDiscarded
	j.Error = formatted
	j.ErrorEvent = job.EventDiscarded
	j.FinishedAt = &now
	j.UpdatedAt = now
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("update job %s after discard: %w", j.ID, err)
	}

	e.extensions.EmitJobDiscarded(ctx, j, cause)

	e.logger.Info("job discarded",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("error", formatted),
	)

	return nil
}

// applyRetry applies a retry handler to a failed attempt. Returns
// again=true when the loop should run another attempt now (blocking
// waits only); otherwise the dispatch is over and err carries the
// outcome.
func (e *Executor) applyRetry(ctx context.Context, j *job.Job, exec *job.Execution, h job.Handler, cause error) (again bool, err error) {
	// Attempts bounds total executions across dispatches, not per
	// dispatch: a rescheduled job resumes its count from ExecutionsCount.
	if h.Attempts > 0 && j.ExecutionsCount >= h.Attempts {
		return false, e.finishRetryStopped(ctx, j, exec, cause)
	}

	wait := h.Wait
	if wait <= 0 {
		wait = e.backoff.Delay(j.ExecutionsCount)
	}

	if err := e.closeAttempt(ctx, j, exec, cause, job.EventRetried); err != nil {
		return false, err
	}

	nextRunAt := time.Now().UTC().Add(wait)
	e.extensions.EmitJobRetryScheduled(ctx, j, j.ExecutionsCount+1, nextRunAt)

	e.logger.Info("retry scheduled",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts_used", j.ExecutionsCount),
		slog.Duration("wait", wait),
	)

	if e.blockingWaits {
		select {
		case <-time.After(wait):
			return true, nil
		case <-ctx.Done():
			// Interrupted mid-wait: park the job so a poller can resume
			// it. The store call must outlive the cancelled context.
			if parkErr := e.reschedule(context.WithoutCancel(ctx), j, nextRunAt); parkErr != nil {
				return false, parkErr
			}
			return false, ctx.Err()
		}
	}

	return false, e.reschedule(ctx, j, nextRunAt)
}

// finishRetryStopped ends the job in the errored state because its retry
// handler ran out of attempts. The reporter fires.
func (e *Executor) finishRetryStopped(ctx context.Context, j *job.Job, exec *job.Execution, cause error) error {
	if err := e.finishTerminalError(ctx, j, exec, cause, job.EventRetryStopped); err != nil {
		return err
	}

	e.reporter.Report(e.logger, cause)
	e.extensions.EmitJobErrored(ctx, j, cause)

	e.logger.Warn("job errored: retries exhausted",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.ExecutionsCount),
		slog.String("error", j.Error),
	)

	return cause
}

// applyRescue runs a rescue continuation. The continuation decides the
// outcome: another attempt, success, or a terminal error. Either way the
// attempt's error counts as handled.
func (e *Executor) applyRescue(ctx context.Context, j *job.Job, exec *job.Execution, h job.Handler, cause error) (again bool, err error) {
	if err := e.closeAttempt(ctx, j, exec, cause, job.EventHandled); err != nil {
		return false, err
	}

	retry, rescueErr := h.Rescue(ctx, cause)
	if retry {
		return true, nil
	}

	now := time.Now().UTC()
	j.FinishedAt = &now
	j.UpdatedAt = now

	if rescueErr == nil {
		// The rescue consumed the error; the job ends succeeded while
		// keeping the handled error for inspection.
		j.State = job.StateSucceeded
		if err := e.store.UpdateJob(ctx, j); err != nil {
			return false, fmt.Errorf("update job %s after rescue: %w", j.ID, err)
		}
		e.extensions.EmitJobSucceeded(ctx, j)

		e.logger.Info("job rescued",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", j.Error),
		)
		return false, nil
	}

	// The continuation itself failed: terminal, but handled, so the
	// reporter stays silent.
	j.State = job.StateErrored
	j.Error = job.FormatError(rescueErr)
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return false, fmt.Errorf("update job %s after rescue: %w", j.ID, err)
	}
	e.extensions.EmitJobErrored(ctx, j, rescueErr)

	e.logger.Warn("job errored: rescue failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("error", j.Error),
	)

	return false, rescueErr
}

// closeAttempt records a failed attempt's execution and mirrors the
// error onto the job without ending it.
func (e *Executor) closeAttempt(ctx context.Context, j *job.Job, exec *job.Execution, cause error, event job.ErrorEvent) error {
	now := time.Now().UTC()
	formatted := job.FormatError(cause)

	exec.Status = job.StatusDiscarded
	exec.Error = formatted
	exec.ErrorEvent = event
	exec.FinishedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}

	j.Error = formatted
	j.ErrorEvent = event
	j.UpdatedAt = now
	return e.store.UpdateJob(ctx, j)
}

// finishTerminalError closes the attempt (if any) and the job with a
// terminal errored state and the given event.
func (e *Executor) finishTerminalError(ctx context.Context, j *job.Job, exec *job.Execution, cause error, event job.ErrorEvent) error {
	now := time.Now().UTC()
	formatted := job.FormatError(cause)

	if exec != nil {
		exec.Status = job.StatusDiscarded
		exec.Error = formatted
		exec.ErrorEvent = event
		exec.FinishedAt = &now
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			return fmt.Errorf("update execution %s: %w", exec.ID, err)
		}
	}

	j.State = job.StateErrored
	j.Error = formatted
	j.ErrorEvent = event
	j.FinishedAt = &now
	j.UpdatedAt = now
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("update job %s after terminal error: %w", j.ID, err)
	}
	return nil
}

// reschedule parks the job back in the queued state with a future run
// time, ending the current dispatch. The next due poll picks it up.
func (e *Executor) reschedule(ctx context.Context, j *job.Job, runAt time.Time) error {
	j.State = job.StateQueued
	j.ScheduledAt = runAt
	j.WorkerID = id.WorkerID{}
	j.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("reschedule job %s: %w", j.ID, err)
	}
	return nil
}

package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobEnqueued       = (*Extension)(nil)
	_ ext.ExecutionStarted  = (*Extension)(nil)
	_ ext.ExecutionFinished = (*Extension)(nil)
	_ ext.JobSucceeded      = (*Extension)(nil)
	_ ext.JobRetryScheduled = (*Extension)(nil)
	_ ext.JobDiscarded      = (*Extension)(nil)
	_ ext.JobErrored        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package does not import any audit vendor —
// callers inject their concrete backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges steady lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		j.ID.String(), nil,
		"job_name", j.Name,
		"queue", j.Queue,
	)
}

// OnExecutionStarted implements ext.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, j *job.Job, exec *job.Execution) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		j.ID.String(), nil,
		"job_name", j.Name,
		"queue", j.Queue,
		"attempt", exec.Seq,
		"worker_id", j.WorkerID.String(),
	)
}

// OnExecutionFinished implements ext.ExecutionFinished.
func (e *Extension) OnExecutionFinished(ctx context.Context, j *job.Job, exec *job.Execution, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	if exec.Status != job.StatusSucceeded {
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionExecutionFinished, SeverityInfo, outcome,
		j.ID.String(), nil,
		"job_name", j.Name,
		"queue", j.Queue,
		"attempt", exec.Seq,
		"status", string(exec.Status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess,
		j.ID.String(), nil,
		"job_name", j.Name,
		"queue", j.Queue,
		"executions", j.ExecutionsCount,
	)
}

// OnJobRetryScheduled implements ext.JobRetryScheduled.
func (e *Extension) OnJobRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		j.ID.String(), nil,
		"job_name", j.Name,
		"queue", j.Queue,
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDiscarded implements ext.JobDiscarded.
func (e *Extension) OnJobDiscarded(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobDiscarded, SeverityWarning, OutcomeFailure,
		j.ID.String(), jobErr,
		"job_name", j.Name,
		"queue", j.Queue,
	)
}

// OnJobErrored implements ext.JobErrored.
func (e *Extension) OnJobErrored(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobErrored, SeverityCritical, OutcomeFailure,
		j.ID.String(), jobErr,
		"job_name", j.Name,
		"queue", j.Queue,
		"executions", j.ExecutionsCount,
		"error_event", string(j.ErrorEvent),
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resourceID string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

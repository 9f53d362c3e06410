package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionJobEnqueued       = "job.enqueued"
	ActionExecutionStarted  = "job.execution_started"
	ActionExecutionFinished = "job.execution_finished"
	ActionJobSucceeded      = "job.succeeded"
	ActionJobRetrying       = "job.retrying"
	ActionJobDiscarded      = "job.discarded"
	ActionJobErrored        = "job.errored"
)

// CategoryJob groups all job lifecycle actions.
const CategoryJob = "steady.job"

// ResourceJob is the Resource field for job audit events.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionExecutionStarted,
		ActionExecutionFinished,
		ActionJobSucceeded,
		ActionJobRetrying,
		ActionJobDiscarded,
		ActionJobErrored,
	}
}

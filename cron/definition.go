package cron

// Definition is a typed cron definition. T is the payload type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// JobName is the name of the job to enqueue on each tick.
	JobName string

	// Payload is the payload enqueued with the job on every fire.
	Payload T

	// Queue overrides the job definition's queue (optional).
	Queue string

	// Priority overrides the job definition's priority (optional;
	// zero means keep the definition's value).
	Priority int
}

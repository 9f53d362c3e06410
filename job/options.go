package job

import "time"

// Options configures per-job behavior: scheduling fields and the error
// handler registry. Definition-level options set the defaults for every
// enqueue of that job type; enqueue-time options override the scheduling
// fields (handler descriptors are fixed at definition time).
type Options struct {
	// Queue is the queue name this job should be enqueued to.
	Queue string

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// ScheduledAt is the earliest eligible run time. Zero means now.
	ScheduledAt time.Time

	// ConcurrencyKey groups jobs for mutual exclusion beyond identity:
	// no two jobs sharing a key execute concurrently.
	ConcurrencyKey string

	// Timeout bounds a single perform invocation. Zero means no limit.
	Timeout time.Duration

	// Handlers is the ordered error handler registry.
	Handlers []Handler
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{Queue: "default"}
}

// Option is a functional option for configuring a job definition or an
// individual enqueue.
type Option func(*Options)

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithScheduledAt sets the earliest eligible run time.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) { o.ScheduledAt = t }
}

// WithConcurrencyKey sets the mutual-exclusion grouping key.
func WithConcurrencyKey(key string) Option {
	return func(o *Options) { o.ConcurrencyKey = key }
}

// WithTimeout bounds a single perform invocation.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// RetryOn adds a retry handler: errors of the given kind (or a descendant)
// schedule another attempt after wait, up to attempts total executions.
// attempts <= 0 means unlimited; a zero wait defers to the engine's
// backoff strategy.
func RetryOn(kind *Kind, attempts int, wait time.Duration) Option {
	return func(o *Options) {
		o.Handlers = append(o.Handlers, Handler{
			Action:   ActionRetry,
			Kind:     kind,
			Attempts: attempts,
			Wait:     wait,
		})
	}
}

// DiscardOn adds a discard handler: errors of the given kind (or a
// descendant) end the job in the discarded state without reporting.
func DiscardOn(kind *Kind) Option {
	return func(o *Options) {
		o.Handlers = append(o.Handlers, Handler{Action: ActionDiscard, Kind: kind})
	}
}

// RescueOn adds a rescue handler: errors of the given kind (or a
// descendant) run the continuation, which may request another attempt or
// end the job.
func RescueOn(kind *Kind, fn RescueFunc) Option {
	return func(o *Options) {
		o.Handlers = append(o.Handlers, Handler{Action: ActionRescue, Kind: kind, Rescue: fn})
	}
}

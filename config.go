package steady

import "time"

// ExecutionMode selects how the adapter executes an enqueued job.
type ExecutionMode string

const (
	// ModeInline runs the job synchronously on the enqueuing goroutine.
	// The caller observes the final job state on return; errors that
	// escape all handlers are reported, never returned.
	ModeInline ExecutionMode = "inline"

	// ModeAsyncAll hands the job to the adapter's own capsule immediately,
	// bypassing the poller, regardless of its scheduled time.
	ModeAsyncAll ExecutionMode = "async_all"

	// ModeExternal persists the job only; a separately running capsule's
	// poller discovers and claims it.
	ModeExternal ExecutionMode = "external"
)

// Config holds configuration for the adapter and its capsule.
type Config struct {
	// ExecutionMode selects inline, async_all, or external execution.
	ExecutionMode ExecutionMode

	// MaxWorkers is the fixed size of the capsule's worker pool.
	MaxWorkers int

	// Queues is the list of queues the capsule's poller will claim from.
	Queues []string

	// PollInterval is how often the poller queries for ready jobs.
	PollInterval time.Duration

	// ReadyQueueCapacity bounds the in-memory queue of claimed jobs
	// waiting for an idle worker. When full, the poller defers further
	// claims (backpressure).
	ReadyQueueCapacity int

	// ShutdownTimeout is the maximum time Shutdown waits for in-flight
	// workers before abandoning them.
	ShutdownTimeout time.Duration
}

// Normalize fills zero-valued fields with their defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.ExecutionMode == "" {
		c.ExecutionMode = def.ExecutionMode
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if len(c.Queues) == 0 {
		c.Queues = def.Queues
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ReadyQueueCapacity <= 0 {
		c.ReadyQueueCapacity = def.ReadyQueueCapacity
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExecutionMode:      ModeExternal,
		MaxWorkers:         10,
		Queues:             []string{"default"},
		PollInterval:       1 * time.Second,
		ReadyQueueCapacity: 32,
		ShutdownTimeout:    30 * time.Second,
	}
}

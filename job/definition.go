package job

import "context"

// Definition is a typed job definition: a perform function plus the
// scheduling defaults and error handler registry for that job type.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this job type.
	Name string

	// Perform is the function that processes the job payload.
	Perform func(ctx context.Context, payload T) error

	// Opts carries queue, priority, timeout, and the handler registry.
	Opts Options
}

// NewDefinition creates a typed job definition. Handler descriptors
// declared here are validated when the definition is registered.
func NewDefinition[T any](name string, perform func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Perform: perform,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

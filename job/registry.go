package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// PerformFunc is a type-erased perform function that accepts raw JSON
// payload. The typed Definition[T] is converted to a PerformFunc at
// registration time by closing over JSON unmarshal + the typed perform.
type PerformFunc func(ctx context.Context, payload []byte) error

// Registered is the runtime view of a registered definition: the
// type-erased perform function, the immutable handler registry, and the
// definition's default options.
type Registered struct {
	Perform  PerformFunc
	Handlers []Handler
	Opts     Options
}

// Registry maps job names to registered definitions.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Registered
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Registered),
	}
}

// RegisterDefinition registers a typed job definition. The generic perform
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling it. The definition's handler registry is validated here:
// malformed registries (nil kind, duplicate kind, rescue without a
// continuation) fail at definition time, never at dispatch time.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) error {
	if err := ValidateHandlers(def.Opts.Handlers); err != nil {
		return fmt.Errorf("register job %q: %w", def.Name, err)
	}

	perform := func(ctx context.Context, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		return def.Perform(ctx, t)
	}

	handlers := make([]Handler, len(def.Opts.Handlers))
	copy(handlers, def.Opts.Handlers)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = &Registered{
		Perform:  perform,
		Handlers: handlers,
		Opts:     def.Opts,
	}
	return nil
}

// Get returns the registered definition for the given job name.
// Returns false if no definition is registered.
func (r *Registry) Get(name string) (*Registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

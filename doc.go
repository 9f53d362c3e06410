// Package steady provides a persistent, at-least-once job execution engine
// for Go. Application code enqueues jobs; a capsule (worker pool + poller)
// claims them under advisory locks and runs each job's retry/discard/rescue
// state machine to completion, recording every execution attempt.
//
// Steady is designed as a library, not a service. Import it, configure a
// store, register job definitions with error-handling policy, and enqueue.
//
// The root package holds the shared leaf types: Entity, Config,
// ExecutionMode, ErrorReporter, and sentinel errors. Subsystems live in
// their own packages: job (models, definitions, handler policy, store
// contract), worker (executor and capsule), engine (the enqueue adapter
// that wires everything together), backoff, queue, middleware, ext, cron,
// and the store implementations under store/.
package steady

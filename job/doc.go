// Package job defines the persistent data model and per-definition policy
// for steady: the Job and Execution records, the error-kind hierarchy,
// the Discard/Retry/Rescue handler descriptors with their resolution rule,
// the typed Definition and its Registry, and the Store persistence contract.
//
// A Job is one enqueued unit of work; an Execution is one attempt at
// running it. Handlers attached to a job definition classify the errors
// its perform function returns; resolution picks the descriptor whose
// matched kind is closest to the raised error's kind in the hierarchy.
package job

// Package audithook is a steady extension that bridges job lifecycle
// events to an immutable audit trail backend.
//
// Every lifecycle hook emits a structured audit event through the
// [Recorder] interface. The extension assigns appropriate severity
// levels (info for normal operations, warning for retries, critical for
// terminal failures) and rich metadata (job name, queue, elapsed time,
// errors).
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobErrored,
//	        audithook.ActionJobDiscarded,
//	    ),
//	)
package audithook

package steady

import "log/slog"

// ErrorReporter is the process-wide callback invoked when an error finally
// escapes handling: a job's terminal unhandled or retry_stopped failure, or
// a defect caught at the worker-pool boundary. It is called synchronously
// on the goroutine that detected the error, with the original error value.
//
// Inject it at construction time (engine.WithErrorReporter); it is never
// ambient global state.
type ErrorReporter func(err error)

// Report invokes the reporter with panic isolation. A panicking reporter
// must never take down a worker; the panic is logged and swallowed.
func (r ErrorReporter) Report(logger *slog.Logger, err error) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("error reporter panicked",
				slog.Any("panic", rec),
				slog.String("original_error", err.Error()),
			)
		}
	}()
	r(err)
}

// Package observability provides an OpenTelemetry-based metrics
// extension for steady. The MetricsExtension implements lifecycle hooks
// to record system-wide counters for job enqueue, success, discard,
// retry, and terminal error events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/steady/job"
)

// tracerName is the instrumentation scope name for steady tracing.
const tracerName = "github.com/xraph/steady"

// Tracing returns middleware that wraps each execution attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: steady.job.id, steady.job.name, steady.queue,
// steady.attempt, steady.concurrency_key. On error, the span status is
// set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "steady.job.execute",
			trace.WithAttributes(
				attribute.String("steady.job.id", j.ID.String()),
				attribute.String("steady.job.name", j.Name),
				attribute.String("steady.queue", j.Queue),
				attribute.Int("steady.attempt", j.ExecutionsCount),
				attribute.String("steady.concurrency_key", j.ConcurrencyKey),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/job"
)

// meterName is the instrumentation scope name for the extension.
const meterName = "github.com/xraph/steady/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.JobEnqueued       = (*MetricsExtension)(nil)
	_ ext.JobSucceeded      = (*MetricsExtension)(nil)
	_ ext.JobRetryScheduled = (*MetricsExtension)(nil)
	_ ext.JobDiscarded      = (*MetricsExtension)(nil)
	_ ext.JobErrored        = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// as an extension to automatically track enqueue rates, success counts,
// retry counts, discards, and terminal errors, partitioned by job name
// and queue.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	succeeded metric.Int64Counter
	retried   metric.Int64Counter
	discarded metric.Int64Counter
	errored   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On instrument errors the OTel API returns noops, so the extension
	// degrades gracefully.
	m.enqueued, _ = meter.Int64Counter("steady.job.enqueued",
		metric.WithDescription("Jobs enqueued"),
		metric.WithUnit("{job}"))
	m.succeeded, _ = meter.Int64Counter("steady.job.succeeded",
		metric.WithDescription("Jobs finished successfully"),
		metric.WithUnit("{job}"))
	m.retried, _ = meter.Int64Counter("steady.job.retried",
		metric.WithDescription("Retry attempts scheduled"),
		metric.WithUnit("{retry}"))
	m.discarded, _ = meter.Int64Counter("steady.job.discarded",
		metric.WithDescription("Jobs discarded by policy"),
		metric.WithUnit("{job}"))
	m.errored, _ = meter.Int64Counter("steady.job.errored",
		metric.WithDescription("Jobs failed terminally"),
		metric.WithUnit("{job}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("queue", j.Queue),
	)
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.enqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job) error {
	m.succeeded.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetryScheduled implements ext.JobRetryScheduled.
func (m *MetricsExtension) OnJobRetryScheduled(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDiscarded implements ext.JobDiscarded.
func (m *MetricsExtension) OnJobDiscarded(ctx context.Context, j *job.Job, _ error) error {
	m.discarded.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobErrored implements ext.JobErrored.
func (m *MetricsExtension) OnJobErrored(ctx context.Context, j *job.Job, _ error) error {
	m.errored.Add(ctx, 1, jobAttrs(j))
	return nil
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/steady"
	"github.com/xraph/steady/backoff"
	"github.com/xraph/steady/cron"
	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
	mw "github.com/xraph/steady/middleware"
	"github.com/xraph/steady/observability"
	"github.com/xraph/steady/queue"
	"github.com/xraph/steady/worker"
)

// Adapter is the enqueue-side entry point of the engine. It persists
// jobs through the store and, depending on the configured execution
// mode, runs them inline, hands them to an in-process capsule, or
// leaves them for external worker processes.
type Adapter struct {
	config     steady.Config
	store      job.Store
	logger     *slog.Logger
	reporter   steady.ErrorReporter
	extensions *ext.Registry
	registry   *job.Registry
	bo         backoff.Strategy
	mws        []mw.Middleware

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// pendingExts holds extensions passed as options until New builds
	// the registry.
	pendingExts []ext.Extension

	// shutdownOnce guards the no-capsule Shutdown path; the capsule has
	// its own idempotence guard.
	shutdownOnce sync.Once

	// inlineExecutor blocks the enqueuing goroutine through retries;
	// asyncExecutor reschedules instead. The capsule (async_all mode
	// only) uses the async executor.
	inlineExecutor *worker.Executor
	asyncExecutor  *worker.Executor
	capsule        *worker.Capsule

	cron *cron.Scheduler
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore sets the persistence backend. Required.
func WithStore(s job.Store) Option {
	return func(a *Adapter) { a.store = s }
}

// WithConfig replaces the whole engine configuration.
func WithConfig(cfg steady.Config) Option {
	return func(a *Adapter) { a.config = cfg }
}

// WithExecutionMode sets how enqueued jobs are executed.
func WithExecutionMode(mode steady.ExecutionMode) Option {
	return func(a *Adapter) { a.config.ExecutionMode = mode }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithReporter sets the error reporter invoked when a job fails
// terminally without a matching handler or after exhausting retries.
func WithReporter(r steady.ErrorReporter) Option {
	return func(a *Adapter) { a.reporter = r }
}

// WithExtension registers an extension with the adapter.
func WithExtension(e ext.Extension) Option {
	return func(a *Adapter) { a.pendingExts = append(a.pendingExts, e) }
}

// WithMiddleware adds middleware to the adapter's chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(a *Adapter) { a.mws = append(a.mws, m) }
}

// WithBackoff sets the retry backoff strategy. If not set,
// backoff.DefaultStrategy() (exponential with full jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(a *Adapter) { a.bo = b }
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(a *Adapter) { a.queueConfigs = append(a.queueConfigs, configs...) }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Adapter) { a.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both the
// metrics middleware and the observability extension use this provider
// instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Adapter) { a.meterProvider = mp }
}

// New creates an Adapter. A store is required; everything else has
// defaults: slog text logging to stderr, DefaultConfig, exponential
// backoff with jitter, and the standard middleware stack.
func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		config: steady.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		return nil, steady.ErrNoStore
	}
	a.config.Normalize()
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if a.bo == nil {
		a.bo = backoff.DefaultStrategy()
	}

	a.extensions = ext.NewRegistry(a.logger)
	a.registry = job.NewRegistry()

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if a.tracerProvider != nil {
		tracer := a.tracerProvider.Tracer("github.com/xraph/steady")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if a.meterProvider != nil {
		meter := a.meterProvider.Meter("github.com/xraph/steady")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if a.meterProvider != nil {
		meter := a.meterProvider.Meter("github.com/xraph/steady/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	a.extensions.Register(obsExt)

	for _, e := range a.pendingExts {
		a.extensions.Register(e)
	}
	a.pendingExts = nil

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(a.logger),
		tracingMw,
		metricsMw,
		mw.Logging(a.logger),
		mw.Timeout(a.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(a.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, a.mws...)

	a.inlineExecutor = worker.NewExecutor(
		a.registry, a.extensions, a.store, a.bo, a.reporter, a.logger,
		worker.WithMiddleware(allMws...),
		worker.WithBlockingWaits(),
	)
	a.asyncExecutor = worker.NewExecutor(
		a.registry, a.extensions, a.store, a.bo, a.reporter, a.logger,
		worker.WithMiddleware(allMws...),
	)

	// The capsule only exists in async_all mode; external mode leaves
	// processing to other processes, inline mode to the caller.
	if a.config.ExecutionMode == steady.ModeAsyncAll {
		capsuleOpts := []worker.CapsuleOption{
			worker.WithConcurrency(a.config.MaxWorkers),
			worker.WithQueues(a.config.Queues),
			worker.WithPollInterval(a.config.PollInterval),
			worker.WithReadyCapacity(a.config.ReadyQueueCapacity),
		}
		if len(a.queueConfigs) > 0 {
			a.queueManager = queue.NewManager(a.queueConfigs...)
			capsuleOpts = append(capsuleOpts, worker.WithQueueManager(a.queueManager))
		}
		a.capsule = worker.NewCapsule(
			a.store, a.asyncExecutor, a.extensions, a.reporter, a.logger,
			capsuleOpts...,
		)
	}

	a.cron = cron.NewScheduler(a.store, a.EnqueueRaw, a.extensions, a.logger)

	return a, nil
}

// Register registers a typed job definition with the adapter. The
// definition's handler registry is validated here; malformed registries
// fail before any job can be enqueued.
func Register[T any](a *Adapter, def *job.Definition[T]) error {
	return job.RegisterDefinition(a.registry, def)
}

// RegisterCron registers a recurring schedule with a typed payload. The
// payload is serialized once at registration and enqueued on every fire.
func RegisterCron[T any](a *Adapter, def *cron.Definition[T]) error {
	data, err := json.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for cron %q: %w", def.Name, err)
	}
	return a.cron.Add(&cron.Entry{
		Name:     def.Name,
		Schedule: def.Schedule,
		JobName:  def.JobName,
		Payload:  data,
		Queue:    def.Queue,
		Priority: def.Priority,
	})
}

// Enqueue creates and enqueues a job with a typed payload.
func Enqueue[T any](ctx context.Context, a *Adapter, name string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return a.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. The
// definition's options set the defaults; enqueue-time options override
// the scheduling fields. In inline mode a due job runs to completion on
// the calling goroutine before EnqueueRaw returns.
func (a *Adapter) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	jobOpts := job.DefaultOptions()
	if def, ok := a.registry.Get(name); ok {
		jobOpts = def.Opts
	}
	for _, opt := range opts {
		opt(&jobOpts)
	}

	now := time.Now().UTC()
	scheduledAt := jobOpts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	j := &job.Job{
		Entity:         steady.NewEntity(),
		ID:             id.NewJobID(),
		Name:           name,
		Queue:          jobOpts.Queue,
		Payload:        payload,
		State:          job.StateQueued,
		Priority:       jobOpts.Priority,
		ScheduledAt:    scheduledAt,
		ConcurrencyKey: jobOpts.ConcurrencyKey,
		Timeout:        jobOpts.Timeout,
	}

	if err := a.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	a.extensions.EmitJobEnqueued(ctx, j)

	switch a.config.ExecutionMode {
	case steady.ModeInline:
		if !scheduledAt.After(now) {
			a.dispatchInline(ctx, j)
		}
	case steady.ModeAsyncAll:
		// Hand the job straight to the pool, scheduled time
		// notwithstanding. A refused submit (capsule not started, lock
		// held, ready queue full) leaves the job queued for the poller.
		a.capsule.Submit(ctx, j)
	}

	return j, nil
}

// dispatchInline runs a freshly enqueued job on the calling goroutine,
// holding its advisory lock for the whole dispatch. If the lock is
// already held (another job shares the concurrency key), the job stays
// queued for whoever holds it — or an external poller — to pick up.
func (a *Adapter) dispatchInline(ctx context.Context, j *job.Job) {
	key := j.LockKey()

	acquired, err := a.store.AcquireLock(ctx, key)
	if err != nil {
		a.logger.Error("inline lock acquire failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		a.logger.Debug("inline dispatch skipped, lock held elsewhere",
			slog.String("job_id", j.ID.String()),
			slog.String("lock_key", key),
		)
		return
	}
	defer func() {
		if relErr := a.store.ReleaseLock(ctx, key); relErr != nil {
			a.logger.Error("inline lock release failed",
				slog.String("lock_key", key),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	if dispatchErr := a.inlineExecutor.Dispatch(ctx, j); dispatchErr != nil {
		a.logger.Debug("inline dispatch ended with error",
			slog.String("job_id", j.ID.String()),
			slog.String("error", dispatchErr.Error()),
		)
	}
}

// Start begins job processing. In async_all mode this launches the
// capsule; in inline and external modes there is nothing to start.
// The cron scheduler starts in any mode, as long as it has entries.
func (a *Adapter) Start(ctx context.Context) error {
	if a.cron.Len() > 0 {
		if err := a.cron.Start(ctx); err != nil {
			return err
		}
	}
	if a.capsule == nil {
		a.logger.Info("no capsule to start",
			slog.String("execution_mode", string(a.config.ExecutionMode)),
		)
		return nil
	}
	return a.capsule.Start(ctx)
}

// Shutdown stops job processing gracefully within the given timeout.
// It is idempotent. The cron scheduler stops first so no new jobs are
// enqueued while the capsule drains. In modes without a capsule it
// only notifies extensions.
func (a *Adapter) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.cron.Stop(ctx); err != nil {
		a.logger.Error("cron scheduler stop failed", slog.String("error", err.Error()))
	}

	if a.capsule == nil {
		a.shutdownOnce.Do(func() {
			a.extensions.EmitShutdown(ctx)
		})
		return nil
	}
	return a.capsule.Shutdown(timeout)
}

// Extensions returns the extension registry.
func (a *Adapter) Extensions() *ext.Registry { return a.extensions }

// Registry returns the job registry.
func (a *Adapter) Registry() *job.Registry { return a.registry }

// Store returns the persistence backend.
func (a *Adapter) Store() job.Store { return a.store }

// Config returns the adapter's configuration.
func (a *Adapter) Config() steady.Config { return a.config }

// Capsule returns the in-process capsule, or nil outside async_all mode.
func (a *Adapter) Capsule() *worker.Capsule { return a.capsule }

// Cron returns the cron scheduler.
func (a *Adapter) Cron() *cron.Scheduler { return a.cron }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (a *Adapter) QueueManager() *queue.Manager { return a.queueManager }

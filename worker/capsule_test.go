package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/backoff"
	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
	"github.com/xraph/steady/middleware"
	"github.com/xraph/steady/store/memory"
	"github.com/xraph/steady/worker"
)

type capsuleEnv struct {
	capsule  *worker.Capsule
	store    *memory.Store
	registry *job.Registry
	reports  *reportCounter
}

func setupCapsule(t *testing.T, concurrency int, pollInterval time.Duration) *capsuleEnv {
	t.Helper()
	logger := testLogger()
	s := memory.New()
	reg := job.NewRegistry()
	extensions := ext.NewRegistry(logger)
	reports := &reportCounter{}

	executor := worker.NewExecutor(
		reg, extensions, s,
		backoff.NewConstant(10*time.Millisecond),
		reports.reporter(), logger,
		worker.WithMiddleware(middleware.Recover(logger)),
	)

	capsule := worker.NewCapsule(s, executor, extensions, reports.reporter(), logger,
		worker.WithConcurrency(concurrency),
		worker.WithPollInterval(pollInterval),
		worker.WithQueues([]string{"default"}),
	)

	return &capsuleEnv{capsule: capsule, store: s, registry: reg, reports: reports}
}

func (env *capsuleEnv) enqueue(t *testing.T, name string, opts ...job.Option) *job.Job {
	t.Helper()
	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	j := &job.Job{
		Entity:         steady.NewEntity(),
		ID:             id.NewJobID(),
		Name:           name,
		Queue:          o.Queue,
		State:          job.StateQueued,
		ScheduledAt:    time.Now().UTC(),
		ConcurrencyKey: o.ConcurrencyKey,
	}
	if err := env.store.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func (env *capsuleEnv) register(t *testing.T, name string, perform func(ctx context.Context, _ struct{}) error, opts ...job.Option) {
	t.Helper()
	if err := job.RegisterDefinition(env.registry, job.NewDefinition(name, perform, opts...)); err != nil {
		t.Fatalf("RegisterDefinition(%s): %v", name, err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for " + msg)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestCapsule_StartShutdown(t *testing.T) {
	env := setupCapsule(t, 2, 50*time.Millisecond)

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	// Double start should be no-op.
	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("double-start error: %v", err)
	}

	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	// Repeated shutdown must be a no-op, not a second shutdown.
	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("double-shutdown error: %v", err)
	}
	// Start after shutdown stays stopped.
	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start-after-shutdown error: %v", err)
	}
}

func TestCapsule_ShutdownIdempotent_Concurrent(t *testing.T) {
	env := setupCapsule(t, 2, 10*time.Millisecond)

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.capsule.Shutdown(2 * time.Second); err != nil {
				t.Errorf("concurrent shutdown error: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestCapsule_ProcessesJob(t *testing.T) {
	env := setupCapsule(t, 1, 10*time.Millisecond)

	var processed atomic.Bool
	env.register(t, "greet", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	})
	j := env.enqueue(t, "greet")

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, processed.Load, "job to be processed")

	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	got, err := env.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.State != job.StateSucceeded {
		t.Errorf("job state = %q, want succeeded", got.State)
	}

	// The advisory lock is released once the dispatch ends.
	acquired, err := env.store.AcquireLock(context.Background(), j.LockKey())
	if err != nil || !acquired {
		t.Errorf("lock still held after dispatch: ok=%v err=%v", acquired, err)
	}
}

func TestCapsule_ConcurrencyKeyMutualExclusion(t *testing.T) {
	env := setupCapsule(t, 4, 5*time.Millisecond)

	var inFlight, maxInFlight atomic.Int32
	var done atomic.Int32
	env.register(t, "exclusive", func(_ context.Context, _ struct{}) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
		return nil
	})

	for range 4 {
		env.enqueue(t, "exclusive", job.WithConcurrencyKey("tenant-42"))
	}

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { return done.Load() == 4 }, "all jobs to finish")

	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent executions for one key = %d, want 1", maxInFlight.Load())
	}
}

func TestCapsule_AsyncRetryAcrossPolls(t *testing.T) {
	env := setupCapsule(t, 1, 5*time.Millisecond)

	kind := job.NewKind("FlakyError", nil)
	var attempts atomic.Int32
	env.register(t, "flaky", func(_ context.Context, _ struct{}) error {
		if attempts.Add(1) < 3 {
			return kind.New("flake")
		}
		return nil
	}, job.RetryOn(kind, 5, 10*time.Millisecond))
	j := env.enqueue(t, "flaky")

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool {
		got, err := env.store.GetJob(context.Background(), j.ID)
		return err == nil && got.State == job.StateSucceeded
	}, "job to succeed after retries")

	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	got, _ := env.store.GetJob(context.Background(), j.ID)
	if got.ExecutionsCount != 3 {
		t.Errorf("ExecutionsCount = %d, want 3", got.ExecutionsCount)
	}
	if env.reports.count.Load() != 0 {
		t.Errorf("reporter fired %d times, want 0", env.reports.count.Load())
	}
}

func TestCapsule_ShutdownTimeout_AbandonsWorkers(t *testing.T) {
	env := setupCapsule(t, 1, 5*time.Millisecond)

	var started atomic.Bool
	release := make(chan struct{})
	env.register(t, "stuck", func(_ context.Context, _ struct{}) error {
		started.Store(true)
		<-release
		return nil
	})
	env.enqueue(t, "stuck")

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, started.Load, "stuck job to start")

	err := env.capsule.Shutdown(50 * time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("shutdown error = %v, want DeadlineExceeded", err)
	}

	// The abandoned worker finishes on its own once unblocked.
	close(release)
}

func TestCapsule_Submit_BypassesPoller(t *testing.T) {
	// Poll interval long enough that only Submit can get the job running.
	env := setupCapsule(t, 1, time.Minute)

	var processed atomic.Bool
	env.register(t, "direct", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	})
	j := env.enqueue(t, "direct")
	// Future-scheduled: the poller would not touch it, Submit must.
	j.ScheduledAt = time.Now().UTC().Add(time.Hour)
	if err := env.store.UpdateJob(context.Background(), j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if !env.capsule.Submit(context.Background(), j) {
		t.Fatal("Submit should hand the job to a worker")
	}
	waitFor(t, processed.Load, "submitted job to run")

	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestCapsule_Submit_RefusedWhenStopped(t *testing.T) {
	env := setupCapsule(t, 1, time.Minute)

	env.register(t, "noop", func(_ context.Context, _ struct{}) error { return nil })
	j := env.enqueue(t, "noop")

	if env.capsule.Submit(context.Background(), j) {
		t.Fatal("Submit must refuse before Start")
	}

	if err := env.capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if err := env.capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	if env.capsule.Submit(context.Background(), j) {
		t.Fatal("Submit must refuse after Shutdown")
	}
	// A refused submit must not leak the advisory lock.
	acquired, err := env.store.AcquireLock(context.Background(), j.LockKey())
	if err != nil || !acquired {
		t.Errorf("lock leaked by refused submit: ok=%v err=%v", acquired, err)
	}
}

func TestCapsule_ExtensionsFire(t *testing.T) {
	logger := testLogger()
	s := memory.New()
	reg := job.NewRegistry()
	extensions := ext.NewRegistry(logger)
	reports := &reportCounter{}

	tracker := &trackingExt{}
	extensions.Register(tracker)

	executor := worker.NewExecutor(
		reg, extensions, s,
		backoff.NewConstant(10*time.Millisecond),
		reports.reporter(), logger,
	)
	capsule := worker.NewCapsule(s, executor, extensions, reports.reporter(), logger,
		worker.WithConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)

	var processed atomic.Bool
	if err := job.RegisterDefinition(reg, job.NewDefinition("tracked", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	j := &job.Job{
		Entity:      steady.NewEntity(),
		ID:          id.NewJobID(),
		Name:        "tracked",
		Queue:       "default",
		State:       job.StateQueued,
		ScheduledAt: time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := capsule.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, processed.Load, "job to be processed")

	if err := capsule.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	if !tracker.started.Load() {
		t.Error("expected OnExecutionStarted to fire")
	}
	if !tracker.succeeded.Load() {
		t.Error("expected OnJobSucceeded to fire")
	}
	if !tracker.shutdown.Load() {
		t.Error("expected OnShutdown to fire")
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt records which hooks fired.
type trackingExt struct {
	started   atomic.Bool
	succeeded atomic.Bool
	errored   atomic.Bool
	shutdown  atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnExecutionStarted(_ context.Context, _ *job.Job, _ *job.Execution) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnJobSucceeded(_ context.Context, _ *job.Job) error {
	e.succeeded.Store(true)
	return nil
}

func (e *trackingExt) OnJobErrored(_ context.Context, _ *job.Job, _ error) error {
	e.errored.Store(true)
	return nil
}

func (e *trackingExt) OnShutdown(_ context.Context) error {
	e.shutdown.Store(true)
	return nil
}

package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/cron"
	"github.com/xraph/steady/engine"
	"github.com/xraph/steady/job"
	"github.com/xraph/steady/store/memory"
)

// ──────────────────────────────────────────────────
// Test payloads
// ──────────────────────────────────────────────────

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAdapter(t *testing.T, mode steady.ExecutionMode, opts ...engine.Option) (*engine.Adapter, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]engine.Option{
		engine.WithStore(s),
		engine.WithLogger(quiet()),
		engine.WithExecutionMode(mode),
	}, opts...)
	a, err := engine.New(opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return a, s
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_RequiresStore(t *testing.T) {
	_, err := engine.New()
	if !errors.Is(err, steady.ErrNoStore) {
		t.Fatalf("got %v, want ErrNoStore", err)
	}
}

func TestRegister_RejectsMalformedHandlers(t *testing.T) {
	a, _ := newAdapter(t, steady.ModeExternal)

	kind := job.NewKind("BrokenKind", nil)
	def := job.NewDefinition("broken", func(_ context.Context, _ struct{}) error {
		return nil
	}, job.RescueOn(kind, nil)) // rescue without a continuation

	if err := engine.Register(a, def); !errors.Is(err, steady.ErrInvalidHandlers) {
		t.Fatalf("got %v, want ErrInvalidHandlers", err)
	}
}

// ──────────────────────────────────────────────────
// Inline mode
// ──────────────────────────────────────────────────

func TestInline_EnqueueRunsSynchronously(t *testing.T) {
	a, s := newAdapter(t, steady.ModeInline)

	var got emailPayload
	if err := engine.Register(a, job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "send-email", emailPayload{
		To:      "alice@example.com",
		Subject: "Hello",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// No Start, no capsule: the job already ran on this goroutine.
	if got.To != "alice@example.com" || got.Subject != "Hello" {
		t.Errorf("payload = %+v", got)
	}

	stored, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != job.StateSucceeded {
		t.Errorf("state = %q, want succeeded", stored.State)
	}
}

func TestInline_RetriesBlockTheCaller(t *testing.T) {
	a, s := newAdapter(t, steady.ModeInline)

	kind := job.NewKind("FlakyError", nil)
	var attempts atomic.Int32
	if err := engine.Register(a, job.NewDefinition("flaky", func(_ context.Context, _ struct{}) error {
		if attempts.Add(1) < 3 {
			return kind.New("flake")
		}
		return nil
	}, job.RetryOn(kind, 5, time.Millisecond))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "flaky", struct{}{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stored, _ := s.GetJob(context.Background(), j.ID)
	if stored.State != job.StateSucceeded {
		t.Errorf("state = %q, want succeeded", stored.State)
	}
	if stored.ExecutionsCount != 3 {
		t.Errorf("ExecutionsCount = %d, want 3", stored.ExecutionsCount)
	}
}

func TestInline_FutureJobStaysQueued(t *testing.T) {
	a, s := newAdapter(t, steady.ModeInline)

	var ran atomic.Bool
	if err := engine.Register(a, job.NewDefinition("later", func(_ context.Context, _ struct{}) error {
		ran.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "later", struct{}{},
		job.WithScheduledAt(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if ran.Load() {
		t.Error("a future-scheduled job must not run inline")
	}
	stored, _ := s.GetJob(context.Background(), j.ID)
	if stored.State != job.StateQueued {
		t.Errorf("state = %q, want queued", stored.State)
	}
}

func TestInline_EnqueueFailureSurfaces(t *testing.T) {
	a, s := newAdapter(t, steady.ModeInline)

	kind := job.NewKind("FatalError", nil)
	if err := engine.Register(a, job.NewDefinition("fatal", func(_ context.Context, _ struct{}) error {
		return kind.New("broken")
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "fatal", struct{}{})
	if err != nil {
		t.Fatalf("Enqueue itself succeeds even when the job errors: %v", err)
	}

	stored, _ := s.GetJob(context.Background(), j.ID)
	if stored.State != job.StateErrored || stored.ErrorEvent != job.EventUnhandled {
		t.Errorf("state/event = %q/%q, want errored/unhandled", stored.State, stored.ErrorEvent)
	}
}

// ──────────────────────────────────────────────────
// Async mode
// ──────────────────────────────────────────────────

func TestAsyncAll_EndToEnd(t *testing.T) {
	a, s := newAdapter(t, steady.ModeAsyncAll,
		engine.WithConfig(steady.Config{
			ExecutionMode: steady.ModeAsyncAll,
			MaxWorkers:    2,
			Queues:        []string{"default"},
			PollInterval:  10 * time.Millisecond,
		}))

	var processed atomic.Bool
	if err := engine.Register(a, job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		if p.To != "bob@example.com" {
			t.Errorf("payload.To = %q", p.To)
		}
		processed.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "send-email", emailPayload{To: "bob@example.com"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.State != job.StateQueued {
		t.Errorf("state at enqueue = %q, want queued", j.State)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := a.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	stored, _ := s.GetJob(context.Background(), j.ID)
	if stored.State != job.StateSucceeded {
		t.Errorf("state = %q, want succeeded", stored.State)
	}
}

// ──────────────────────────────────────────────────
// External mode
// ──────────────────────────────────────────────────

func TestExternal_EnqueueOnly(t *testing.T) {
	a, s := newAdapter(t, steady.ModeExternal)

	var ran atomic.Bool
	if err := engine.Register(a, job.NewDefinition("handoff", func(_ context.Context, _ struct{}) error {
		ran.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(context.Background(), a, "handoff", struct{}{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Start and Shutdown are no-ops without a capsule.
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Capsule() != nil {
		t.Error("external mode must not build a capsule")
	}
	if err := a.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if ran.Load() {
		t.Error("external mode must not execute locally")
	}
	stored, _ := s.GetJob(context.Background(), j.ID)
	if stored.State != job.StateQueued {
		t.Errorf("state = %q, want queued", stored.State)
	}
}

// ──────────────────────────────────────────────────
// Option resolution
// ──────────────────────────────────────────────────

func TestEnqueue_DefinitionDefaultsAndOverrides(t *testing.T) {
	a, _ := newAdapter(t, steady.ModeExternal)

	if err := engine.Register(a, job.NewDefinition("report", func(_ context.Context, _ struct{}) error {
		return nil
	}, job.WithQueue("reports"), job.WithPriority(5))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Definition defaults apply.
	j1, err := engine.Enqueue(context.Background(), a, "report", struct{}{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j1.Queue != "reports" || j1.Priority != 5 {
		t.Errorf("defaults not applied: queue=%q priority=%d", j1.Queue, j1.Priority)
	}

	// Enqueue-time options override scheduling fields.
	j2, err := engine.Enqueue(context.Background(), a, "report", struct{}{},
		job.WithQueue("urgent"), job.WithPriority(100))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j2.Queue != "urgent" || j2.Priority != 100 {
		t.Errorf("overrides not applied: queue=%q priority=%d", j2.Queue, j2.Priority)
	}
}

func TestEnqueue_ReporterFiresOnUnhandled(t *testing.T) {
	var reported atomic.Int32
	s := memory.New()
	a, err := engine.New(
		engine.WithStore(s),
		engine.WithLogger(quiet()),
		engine.WithExecutionMode(steady.ModeInline),
		engine.WithReporter(func(_ error) { reported.Add(1) }),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	if err := engine.Register(a, job.NewDefinition("unhappy", func(_ context.Context, _ struct{}) error {
		return errors.New("nobody handles this")
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := engine.Enqueue(context.Background(), a, "unhappy", struct{}{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if reported.Load() != 1 {
		t.Errorf("reporter fired %d times, want exactly 1", reported.Load())
	}
}

// ──────────────────────────────────────────────────
// Cron
// ──────────────────────────────────────────────────

func TestRegisterCron_EnqueuesThroughAdapter(t *testing.T) {
	a, s := newAdapter(t, steady.ModeExternal)

	if err := engine.Register(a, job.NewDefinition("nightly-digest", func(_ context.Context, _ emailPayload) error {
		return nil
	}, job.WithQueue("digests"))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := engine.RegisterCron(a, &cron.Definition[emailPayload]{
		Name:     "digest",
		Schedule: "@every 1s",
		JobName:  "nightly-digest",
		Payload:  emailPayload{To: "ops@example.com", Subject: "Digest"},
	}); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	// Duplicate names are rejected at registration.
	err := engine.RegisterCron(a, &cron.Definition[emailPayload]{
		Name:     "digest",
		Schedule: "@every 1s",
		JobName:  "nightly-digest",
	})
	if err == nil {
		t.Fatal("expected error for duplicate cron name")
	}

	// Force the entry due and let the scheduler fire it.
	sched := cron.NewScheduler(s, a.EnqueueRaw, a.Extensions(), quiet(),
		cron.WithTickInterval(20*time.Millisecond))
	if addErr := sched.Add(&cron.Entry{
		Name:     "digest-now",
		Schedule: "@every 1s",
		JobName:  "nightly-digest",
		Payload:  []byte(`{"to":"ops@example.com","subject":"Digest"}`),
	}); addErr != nil {
		t.Fatalf("Add: %v", addErr)
	}
	if startErr := sched.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	deadline := time.After(3 * time.Second)
	var fired []*job.Job
	for len(fired) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for cron fire")
		default:
			var listErr error
			fired, listErr = s.ListJobsByState(context.Background(), job.StateQueued, job.ListOpts{})
			if listErr != nil {
				t.Fatalf("ListJobsByState: %v", listErr)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	if stopErr := sched.Stop(context.Background()); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// The fired job picked up the definition's queue.
	if fired[0].Name != "nightly-digest" {
		t.Errorf("job name = %q, want nightly-digest", fired[0].Name)
	}
	if fired[0].Queue != "digests" {
		t.Errorf("queue = %q, want digests", fired[0].Queue)
	}
}

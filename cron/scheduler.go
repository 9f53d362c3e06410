package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/steady/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, j *job.Job)
}

// Locker is the slice of the store the scheduler needs: advisory locks
// that make concurrent scheduler instances skip a fire another instance
// already claimed.
type Locker interface {
	AcquireLock(ctx context.Context, key string) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires registered entries on a tick loop. Each fire is
// claimed through the advisory lock "cron:<name>" before enqueuing, so
// overlapping schedulers skip instead of double-firing.
type Scheduler struct {
	locker  Locker
	enqueue EnqueueFunc
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*Entry

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	locker Locker,
	enqueue EnqueueFunc,
	emitter Emitter,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		locker:       locker,
		enqueue:      enqueue,
		emitter:      emitter,
		logger:       logger,
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*Entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers an entry. The schedule is parsed and validated here;
// duplicate names are rejected. Entries start enabled with their first
// run at the schedule's next occurrence.
func (s *Scheduler) Add(e *Entry) error {
	if e.Name == "" {
		return fmt.Errorf("cron: entry has no name")
	}
	if e.JobName == "" {
		return fmt.Errorf("cron: entry %q has no job name", e.Name)
	}

	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return fmt.Errorf("cron: entry %q schedule %q: %w", e.Name, e.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.Name]; exists {
		return fmt.Errorf("cron: entry %q already registered", e.Name)
	}

	e.sched = sched
	e.Enabled = true
	e.NextRunAt = sched.Next(time.Now().UTC())
	s.entries[e.Name] = e
	return nil
}

// Enable turns an entry back on. Its next run is recomputed from now so
// a long-disabled entry does not fire immediately for missed ticks.
func (s *Scheduler) Enable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	e.Enabled = true
	e.NextRunAt = e.sched.Next(time.Now().UTC())
	return true
}

// Disable turns an entry off. The entry stays registered.
func (s *Scheduler) Disable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return false
	}
	e.Enabled = false
	return true
}

// Entries returns a snapshot of all registered entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start launches the tick goroutine. Starting twice is a no-op.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Int("entries", s.Len()),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
// It is idempotent.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("cron scheduler stopped")
	})
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Enabled && !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fireEntry(ctx, e, now)
	}
}

// fireEntry claims the entry's advisory lock, enqueues its job, and
// advances the next run time. The next run advances even when the lock
// was held elsewhere: that fire belonged to another instance.
func (s *Scheduler) fireEntry(ctx context.Context, e *Entry, now time.Time) {
	defer func() {
		s.mu.Lock()
		e.NextRunAt = e.sched.Next(now)
		s.mu.Unlock()
	}()

	key := "cron:" + e.Name
	acquired, err := s.locker.AcquireLock(ctx, key)
	if err != nil {
		s.logger.Error("cron lock acquire error",
			slog.String("cron_name", e.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another scheduler instance got it.
	}
	defer func() {
		if relErr := s.locker.ReleaseLock(ctx, key); relErr != nil {
			s.logger.Error("cron lock release error",
				slog.String("cron_name", e.Name),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	var enqOpts []job.Option
	if e.Queue != "" {
		enqOpts = append(enqOpts, job.WithQueue(e.Queue))
	}
	if e.Priority != 0 {
		enqOpts = append(enqOpts, job.WithPriority(e.Priority))
	}

	j, enqErr := s.enqueue(ctx, e.JobName, e.Payload, enqOpts...)
	if enqErr != nil {
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", e.Name),
			slog.String("job_name", e.JobName),
			slog.String("error", enqErr.Error()),
		)
		return
	}

	s.mu.Lock()
	fired := now
	e.LastRunAt = &fired
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, e.Name, j)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", e.Name),
		slog.String("job_name", e.JobName),
		slog.String("job_id", j.ID.String()),
	)
}

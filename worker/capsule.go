package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/ext"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

// QueueManager controls per-queue rate limiting and concurrency. The
// capsule calls Acquire before dispatching a claimed job and Release
// after the dispatch completes.
type QueueManager interface {
	// Acquire checks rate limits and concurrency for the queue.
	// Returns true if the job is allowed to proceed.
	Acquire(queue string) bool
	// Release decrements the active count for the queue.
	Release(queue string)
}

// claim is a job the poller locked and handed to a worker. The worker
// owns the advisory lock until the dispatch ends.
type claim struct {
	job     *job.Job
	lockKey string
}

// Capsule hosts the processing side of the engine: a poller goroutine
// that claims due jobs under advisory locks, a bounded ready channel,
// and a fixed set of worker goroutines dispatching claimed jobs.
//
// The ready channel is the backpressure point: when every worker is busy
// and the channel is full, the poller stops claiming until a slot frees.
type Capsule struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	reporter   steady.ErrorReporter
	logger     *slog.Logger

	concurrency  int
	queues       []string
	pollInterval time.Duration
	readyCap     int
	workerID     id.WorkerID

	// Queue manager (optional).
	queueManager QueueManager

	stopCh   chan struct{}
	ready    chan claim
	pollerWG sync.WaitGroup
	workerWG sync.WaitGroup

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopOnce sync.Once
}

// CapsuleOption configures a Capsule.
type CapsuleOption func(*Capsule)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) CapsuleOption {
	return func(c *Capsule) { c.concurrency = n }
}

// WithQueues sets the queues the capsule will poll.
func WithQueues(queues []string) CapsuleOption {
	return func(c *Capsule) { c.queues = queues }
}

// WithPollInterval sets how often the poller looks for due jobs.
func WithPollInterval(d time.Duration) CapsuleOption {
	return func(c *Capsule) { c.pollInterval = d }
}

// WithReadyCapacity sets the ready channel's capacity.
func WithReadyCapacity(n int) CapsuleOption {
	return func(c *Capsule) { c.readyCap = n }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) CapsuleOption {
	return func(c *Capsule) { c.queueManager = m }
}

// NewCapsule creates a capsule around the given store and executor.
func NewCapsule(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	reporter steady.ErrorReporter,
	logger *slog.Logger,
	opts ...CapsuleOption,
) *Capsule {
	c := &Capsule{
		store:        store,
		executor:     executor,
		extensions:   extensions,
		reporter:     reporter,
		logger:       logger,
		concurrency:  10,
		queues:       []string{"default"},
		pollInterval: time.Second,
		readyCap:     32,
		workerID:     id.NewWorkerID(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WorkerID returns the capsule's unique worker identifier.
func (c *Capsule) WorkerID() id.WorkerID { return c.workerID }

// Start launches the poller and worker goroutines. It returns
// immediately. Starting a running or stopped capsule is a no-op.
func (c *Capsule) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.stopped {
		return nil
	}
	c.running = true
	c.ready = make(chan claim, c.readyCap)

	c.logger.Info("capsule starting",
		slog.String("worker_id", c.workerID.String()),
		slog.Int("concurrency", c.concurrency),
		slog.Any("queues", c.queues),
	)

	for range c.concurrency {
		c.workerWG.Add(1)
		go c.workerLoop()
	}

	c.pollerWG.Add(1)
	go c.pollLoop()

	return nil
}

// Shutdown stops the poller, waits for in-flight dispatches up to
// timeout, and notifies extensions. It is idempotent: concurrent and
// repeated calls share one shutdown, and later calls return immediately.
//
// Workers still running when the timeout elapses are abandoned, not
// killed; their store updates may land afterwards, and their advisory
// locks release when the store closes.
func (c *Capsule) Shutdown(timeout time.Duration) error {
	var err error
	c.stopOnce.Do(func() {
		err = c.shutdown(timeout)
	})
	return err
}

func (c *Capsule) shutdown(timeout time.Duration) error {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	c.stopped = true
	c.mu.Unlock()

	if !wasRunning {
		return nil
	}

	c.logger.Info("capsule stopping", slog.String("worker_id", c.workerID.String()))

	// Stop the poller first so no new claims arrive, then let workers
	// drain whatever the poller already handed over.
	close(c.stopCh)
	c.pollerWG.Wait()
	close(c.ready)

	done := make(chan struct{})
	go func() {
		c.workerWG.Wait()
		close(done)
	}()

	var timedOut bool
	select {
	case <-done:
		c.logger.Info("capsule stopped gracefully")
	case <-time.After(timeout):
		timedOut = true
		c.logger.Warn("capsule shutdown timed out, abandoning active workers",
			slog.Duration("timeout", timeout),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c.extensions.EmitShutdown(ctx)

	if timedOut {
		return fmt.Errorf("capsule shutdown: %w", context.DeadlineExceeded)
	}
	return nil
}

// Submit hands an already persisted job directly to the worker pool,
// bypassing the poller and its due-time check. Returns true when a
// worker will run the job. Returns false — leaving the job queued for a
// poller — when the capsule is not running, the advisory lock is held
// elsewhere, the queue is at its limit, or the ready queue is full.
func (c *Capsule) Submit(ctx context.Context, j *job.Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}

	if c.queueManager != nil && !c.queueManager.Acquire(j.Queue) {
		return false
	}

	key := j.LockKey()
	acquired, err := c.store.AcquireLock(ctx, key)
	if err != nil || !acquired {
		if err != nil {
			c.logger.Error("lock acquire failed",
				slog.String("lock_key", key),
				slog.String("error", err.Error()),
			)
		}
		if c.queueManager != nil {
			c.queueManager.Release(j.Queue)
		}
		return false
	}

	cp := *j
	cp.WorkerID = c.workerID
	cl := claim{job: &cp, lockKey: key}

	// Non-blocking: Submit promises to return immediately, so a full
	// ready queue defers the job to the poller instead of waiting.
	select {
	case c.ready <- cl:
		return true
	default:
		c.unclaim(cl)
		return false
	}
}

// pollLoop repeatedly claims due jobs and feeds them to workers.
func (c *Capsule) pollLoop() {
	defer c.pollerWG.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		claimed := c.pollOnce()
		if claimed == 0 {
			select {
			case <-time.After(c.pollInterval):
			case <-c.stopCh:
				return
			}
		}
	}
}

// pollOnce queries due jobs and tries to claim each one. Returns how
// many claims were handed to workers.
func (c *Capsule) pollOnce() int {
	ctx := context.Background()

	due, err := c.store.DueJobs(ctx, c.queues, c.readyCap)
	if err != nil {
		c.logger.Error("due job query failed", slog.String("error", err.Error()))
		return 0
	}

	handed := 0
	for _, j := range due {
		select {
		case <-c.stopCh:
			return handed
		default:
		}

		if c.queueManager != nil && !c.queueManager.Acquire(j.Queue) {
			// Rate limited or at the queue's concurrency cap; the job
			// stays queued for a later poll.
			continue
		}

		cl, ok := c.claimJob(ctx, j)
		if !ok {
			if c.queueManager != nil {
				c.queueManager.Release(j.Queue)
			}
			continue
		}

		select {
		case c.ready <- cl:
			handed++
		case <-c.stopCh:
			// Shutting down with an unstarted claim: put it back.
			c.unclaim(cl)
			return handed
		}
	}
	return handed
}

// claimJob takes the job's advisory lock and re-checks eligibility under
// it. The due query races with other processes, so the lock holder
// verifies the job is still queued and due before dispatching.
func (c *Capsule) claimJob(ctx context.Context, j *job.Job) (claim, bool) {
	key := j.LockKey()

	acquired, err := c.store.AcquireLock(ctx, key)
	if err != nil {
		c.logger.Error("lock acquire failed",
			slog.String("lock_key", key),
			slog.String("error", err.Error()),
		)
		return claim{}, false
	}
	if !acquired {
		return claim{}, false
	}

	fresh, err := c.store.GetJob(ctx, j.ID)
	if err != nil || fresh.State != job.StateQueued || fresh.ScheduledAt.After(time.Now()) {
		c.releaseLock(key)
		return claim{}, false
	}

	fresh.WorkerID = c.workerID
	return claim{job: fresh, lockKey: key}, true
}

// unclaim releases a claim that never reached a worker.
func (c *Capsule) unclaim(cl claim) {
	if c.queueManager != nil {
		c.queueManager.Release(cl.job.Queue)
	}
	c.releaseLock(cl.lockKey)
}

// workerLoop is run by each worker goroutine. It dispatches claims until
// the ready channel closes.
func (c *Capsule) workerLoop() {
	defer c.workerWG.Done()

	for cl := range c.ready {
		c.dispatch(cl)
	}
}

// dispatch runs one claim through the executor, holding the advisory
// lock for the whole dispatch.
func (c *Capsule) dispatch(cl claim) {
	defer func() {
		if c.queueManager != nil {
			c.queueManager.Release(cl.job.Queue)
		}
		c.releaseLock(cl.lockKey)
	}()
	defer func() {
		// Perform panics are converted to errors by the middleware
		// chain; this guards the dispatch machinery itself so one job
		// cannot take down its worker goroutine.
		if rec := recover(); rec != nil {
			err := fmt.Errorf("dispatch panic for job %s: %v", cl.job.ID, rec)
			c.reporter.Report(c.logger, err)
			c.logger.Error("dispatch panicked",
				slog.String("job_id", cl.job.ID.String()),
				slog.String("job_name", cl.job.Name),
				slog.Any("panic", rec),
			)
		}
	}()

	if err := c.executor.Dispatch(context.Background(), cl.job); err != nil {
		c.logger.Debug("dispatch ended with error",
			slog.String("job_id", cl.job.ID.String()),
			slog.String("job_name", cl.job.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Capsule) releaseLock(key string) {
	if err := c.store.ReleaseLock(context.Background(), key); err != nil {
		c.logger.Error("lock release failed",
			slog.String("lock_key", key),
			slog.String("error", err.Error()),
		)
	}
}

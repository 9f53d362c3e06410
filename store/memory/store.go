// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing, development,
// and inline execution.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

// Ensure Store satisfies the persistence contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs       map[string]*job.Job
	executions map[string]*job.Execution
	locks      map[string]struct{}

	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:       make(map[string]*job.Job),
		executions: make(map[string]*job.Execution),
		locks:      make(map[string]struct{}),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping succeeds unless the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return steady.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed and drops every advisory lock it holds.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.locks = make(map[string]struct{})
	return nil
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return steady.ErrStoreClosed
	}
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return steady.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, steady.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return steady.ErrStoreClosed
	}
	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return steady.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job and the executions it owns.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return steady.ErrJobNotFound
	}
	delete(m.jobs, key)
	for execKey, e := range m.executions {
		if e.JobID.String() == key {
			delete(m.executions, execKey)
		}
	}
	return nil
}

// DueJobs returns up to limit queued jobs whose scheduled time has
// arrived, ordered by priority DESC then ScheduledAt ASC. It does not
// claim them.
func (m *Store) DueJobs(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StateQueued {
			continue
		}
		if !j.ScheduledAt.IsZero() && j.ScheduledAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// Sort: priority DESC, ScheduledAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}
	return result, nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Executions
// ──────────────────────────────────────────────────

// CreateExecution persists a new execution attempt.
func (m *Store) CreateExecution(_ context.Context, e *job.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return steady.ErrStoreClosed
	}
	if _, ok := m.jobs[e.JobID.String()]; !ok {
		return steady.ErrJobNotFound
	}
	cp := *e
	m.executions[e.ID.String()] = &cp
	return nil
}

// UpdateExecution persists changes to an existing execution.
func (m *Store) UpdateExecution(_ context.Context, e *job.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return steady.ErrStoreClosed
	}
	key := e.ID.String()
	if _, ok := m.executions[key]; !ok {
		return steady.ErrExecutionNotFound
	}
	cp := *e
	m.executions[key] = &cp
	return nil
}

// ListExecutions returns a job's executions ordered by CreatedAt.
func (m *Store) ListExecutions(_ context.Context, jobID id.JobID) ([]*job.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := jobID.String()
	var result []*job.Execution
	for _, e := range m.executions {
		if e.JobID.String() != key {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].Seq < result[k].Seq
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// Advisory locks
// ──────────────────────────────────────────────────

// AcquireLock attempts to take the advisory lock for the given key.
func (m *Store) AcquireLock(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, steady.ErrStoreClosed
	}
	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = struct{}{}
	return true, nil
}

// ReleaseLock releases an advisory lock. Releasing a lock that is not
// held is a no-op.
func (m *Store) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, key)
	return nil
}

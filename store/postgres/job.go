package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

// jobColumns is the canonical column list for steady_jobs queries.
const jobColumns = `
	id, name, queue, payload, state, priority, scheduled_at,
	concurrency_key, worker_id, performed_at, finished_at,
	executions_count, error, error_event, timeout,
	created_at, updated_at`

// CreateJob persists a new job in queued state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steady_jobs (
			id, name, queue, payload, state, priority, scheduled_at,
			concurrency_key, worker_id, performed_at, finished_at,
			executions_count, error, error_event, timeout,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)`,
		j.ID.String(), j.Name, j.Queue, j.Payload, string(j.State),
		j.Priority, j.ScheduledAt,
		j.ConcurrencyKey, j.WorkerID.String(), j.PerformedAt, j.FinishedAt,
		j.ExecutionsCount, j.Error, string(j.ErrorEvent), j.Timeout.Nanoseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return steady.ErrJobAlreadyExists
		}
		return fmt.Errorf("steady/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM steady_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, steady.ErrJobNotFound
		}
		return nil, fmt.Errorf("steady/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE steady_jobs SET
			name = $2, queue = $3, payload = $4, state = $5,
			priority = $6, scheduled_at = $7, concurrency_key = $8,
			worker_id = $9, performed_at = $10, finished_at = $11,
			executions_count = $12, error = $13, error_event = $14,
			timeout = $15, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.Name, j.Queue, j.Payload, string(j.State),
		j.Priority, j.ScheduledAt, j.ConcurrencyKey,
		j.WorkerID.String(), j.PerformedAt, j.FinishedAt,
		j.ExecutionsCount, j.Error, string(j.ErrorEvent),
		j.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("steady/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steady.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID. Its executions cascade.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM steady_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("steady/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steady.ErrJobNotFound
	}
	return nil
}

// DueJobs returns up to limit queued jobs from the given queues whose
// scheduled time has arrived. It does not claim them; the caller claims
// each via AcquireLock before dispatching.
func (s *Store) DueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM steady_jobs
		WHERE state = 'queued'
		  AND queue = ANY($1)
		  AND scheduled_at <= NOW()
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2`,
		queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("steady/postgres: due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM steady_jobs WHERE state = $1`
	args := []interface{}{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("steady/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM steady_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("steady/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		stateStr  string
		eventStr  string
		workerStr string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &j.Name, &j.Queue, &j.Payload, &stateStr,
		&j.Priority, &j.ScheduledAt,
		&j.ConcurrencyKey, &workerStr, &j.PerformedAt, &j.FinishedAt,
		&j.ExecutionsCount, &j.Error, &eventStr, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)
	j.ErrorEvent = job.ErrorEvent(eventStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("steady/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("steady/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("steady/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateJob persists a new job in queued state.
//
// All timestamps are normalized to UTC on write so that SQLite's
// lexicographic DATETIME comparisons match chronological order.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steady_jobs (
			id, name, queue, payload, state, priority, scheduled_at,
			concurrency_key, worker_id, performed_at, finished_at,
			executions_count, error, error_event, timeout,
			created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?
		)`,
		j.ID.String(), j.Name, j.Queue, j.Payload, string(j.State),
		j.Priority, j.ScheduledAt.UTC(),
		j.ConcurrencyKey, j.WorkerID.String(), utcPtr(j.PerformedAt), utcPtr(j.FinishedAt),
		j.ExecutionsCount, j.Error, string(j.ErrorEvent), j.Timeout.Nanoseconds(),
		j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return steady.ErrJobAlreadyExists
		}
		return fmt.Errorf("steady/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM steady_jobs WHERE id = ?`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, steady.ErrJobNotFound
		}
		return nil, fmt.Errorf("steady/sqlite: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steady_jobs SET
			name = ?, queue = ?, payload = ?, state = ?,
			priority = ?, scheduled_at = ?, concurrency_key = ?,
			worker_id = ?, performed_at = ?, finished_at = ?,
			executions_count = ?, error = ?, error_event = ?,
			timeout = ?, updated_at = ?
		WHERE id = ?`,
		j.Name, j.Queue, j.Payload, string(j.State),
		j.Priority, j.ScheduledAt.UTC(), j.ConcurrencyKey,
		j.WorkerID.String(), utcPtr(j.PerformedAt), utcPtr(j.FinishedAt),
		j.ExecutionsCount, j.Error, string(j.ErrorEvent),
		j.Timeout.Nanoseconds(), time.Now().UTC(),
		j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("steady/sqlite: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return steady.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID. Its executions cascade.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM steady_jobs WHERE id = ?`, jobID.String())
	if err != nil {
		return fmt.Errorf("steady/sqlite: delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return steady.ErrJobNotFound
	}
	return nil
}

// DueJobs returns up to limit queued jobs from the given queues whose
// scheduled time has arrived. It does not claim them.
func (s *Store) DueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM steady_jobs
		WHERE state = 'queued'
		  AND scheduled_at <= ?
		  AND queue IN (` + placeholders(len(queues)) + `)
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT ?`

	args := make([]any, 0, len(queues)+2)
	args = append(args, time.Now().UTC())
	for _, q := range queues {
		args = append(args, q)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("steady/sqlite: due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM steady_jobs WHERE state = ?`
	args := []any{string(state)}

	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}

	query += ` ORDER BY created_at ASC`

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET; -1 means unlimited.
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("steady/sqlite: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM steady_jobs WHERE 1=1`
	args := []any{}

	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}
	if opts.State != "" {
		query += ` AND state = ?`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("steady/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		stateStr    string
		eventStr    string
		workerStr   string
		performedAt sql.NullTime
		finishedAt  sql.NullTime
		timeoutNs   int64
	)
	err := row.Scan(
		&idStr, &j.Name, &j.Queue, &j.Payload, &stateStr,
		&j.Priority, &j.ScheduledAt,
		&j.ConcurrencyKey, &workerStr, &performedAt, &finishedAt,
		&j.ExecutionsCount, &j.Error, &eventStr, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)
	j.ErrorEvent = job.ErrorEvent(eventStr)
	j.Timeout = time.Duration(timeoutNs)
	if performedAt.Valid {
		t := performedAt.Time
		j.PerformedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("steady/sqlite: parse job id %q: %w", idStr, parseErr)
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
func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("steady/sqlite: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("steady/sqlite: iterate job rows: %w", err)
	}
	return jobs, nil
}

// placeholders returns n comma-separated "?" marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

// utcPtr normalizes an optional timestamp to UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

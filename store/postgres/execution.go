package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

const executionColumns = `
	id, job_id, seq, status, error, error_event, created_at, finished_at`

// CreateExecution persists a new execution attempt for a job.
func (s *Store) CreateExecution(ctx context.Context, e *job.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steady_executions (
			id, job_id, seq, status, error, error_event, created_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`,
		e.ID.String(), e.JobID.String(), e.Seq, string(e.Status),
		e.Error, string(e.ErrorEvent), e.CreatedAt, e.FinishedAt,
	)
	if err != nil {
		// The job_id foreign key rejects executions for missing jobs.
		if isForeignKeyViolation(err) {
			return steady.ErrJobNotFound
		}
		return fmt.Errorf("steady/postgres: create execution: %w", err)
	}
	return nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *job.Execution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE steady_executions SET
			status = $2, error = $3, error_event = $4, finished_at = $5
		WHERE id = $1`,
		e.ID.String(), string(e.Status), e.Error, string(e.ErrorEvent), e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("steady/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steady.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns a job's executions ordered by creation.
func (s *Store) ListExecutions(ctx context.Context, jobID id.JobID) ([]*job.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+`
		FROM steady_executions
		WHERE job_id = $1
		ORDER BY created_at ASC, seq ASC`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("steady/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var execs []*job.Execution
	for rows.Next() {
		e, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("steady/postgres: scan execution row: %w", scanErr)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("steady/postgres: iterate execution rows: %w", err)
	}
	return execs, nil
}

// scanExecution scans a single execution row.
func scanExecution(row pgx.Row) (*job.Execution, error) {
	var (
		e         job.Execution
		idStr     string
		jobStr    string
		statusStr string
		eventStr  string
	)
	err := row.Scan(
		&idStr, &jobStr, &e.Seq, &statusStr,
		&e.Error, &eventStr, &e.CreatedAt, &e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = job.Status(statusStr)
	e.ErrorEvent = job.ErrorEvent(eventStr)

	parsedID, parseErr := id.ParseExecutionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("steady/postgres: parse execution id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, fmt.Errorf("steady/postgres: parse job id %q: %w", jobStr, jobErr)
	}
	e.JobID = parsedJob

	return &e, nil
}

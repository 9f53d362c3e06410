package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

const executionColumns = `
	id, job_id, seq, status, error, error_event, created_at, finished_at`

// CreateExecution persists a new execution attempt for a job.
func (s *Store) CreateExecution(ctx context.Context, e *job.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steady_executions (
			id, job_id, seq, status, error, error_event, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.JobID.String(), e.Seq, string(e.Status),
		e.Error, string(e.ErrorEvent), e.CreatedAt.UTC(), utcPtr(e.FinishedAt),
	)
	if err != nil {
		// The job_id foreign key rejects executions for missing jobs.
		if isForeignKeyViolation(err) {
			return steady.ErrJobNotFound
		}
		return fmt.Errorf("steady/sqlite: create execution: %w", err)
	}
	return nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *job.Execution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steady_executions SET
			status = ?, error = ?, error_event = ?, finished_at = ?
		WHERE id = ?`,
		string(e.Status), e.Error, string(e.ErrorEvent), utcPtr(e.FinishedAt),
		e.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("steady/sqlite: update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return steady.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns a job's executions ordered by creation.
func (s *Store) ListExecutions(ctx context.Context, jobID id.JobID) ([]*job.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+`
		FROM steady_executions
		WHERE job_id = ?
		ORDER BY created_at ASC, seq ASC`,
		jobID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("steady/sqlite: list executions: %w", err)
	}
	defer rows.Close()

	var execs []*job.Execution
	for rows.Next() {
		e, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("steady/sqlite: scan execution row: %w", scanErr)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("steady/sqlite: iterate execution rows: %w", err)
	}
	return execs, nil
}

// scanExecution scans a single execution row.
func scanExecution(row rowScanner) (*job.Execution, error) {
	var (
		e          job.Execution
		idStr      string
		jobStr     string
		statusStr  string
		eventStr   string
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&idStr, &jobStr, &e.Seq, &statusStr,
		&e.Error, &eventStr, &e.CreatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = job.Status(statusStr)
	e.ErrorEvent = job.ErrorEvent(eventStr)
	if finishedAt.Valid {
		t := finishedAt.Time
		e.FinishedAt = &t
	}

	parsedID, parseErr := id.ParseExecutionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("steady/sqlite: parse execution id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, fmt.Errorf("steady/sqlite: parse job id %q: %w", jobStr, jobErr)
	}
	e.JobID = parsedJob

	return &e, nil
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

// CreateExecution stores the execution as a Hash and indexes it in the
// owning job's Sorted Set, scored by sequence number.
func (s *Store) CreateExecution(ctx context.Context, e *job.Execution) error {
	jID := e.JobID.String()

	// Executions belong to an existing job.
	exists, err := s.client.Exists(ctx, jobKey(jID)).Result()
	if err != nil {
		return fmt.Errorf("steady/redis: create execution check job: %w", err)
	}
	if exists == 0 {
		return steady.ErrJobNotFound
	}

	eID := e.ID.String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, execKey(eID), execToMap(e))
	pipe.ZAdd(ctx, jobExecsKey(jID), goredis.Z{Score: float64(e.Seq), Member: eID})

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("steady/redis: create execution: %w", err)
	}
	return nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *job.Execution) error {
	key := execKey(e.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("steady/redis: update execution exists: %w", err)
	}
	if exists == 0 {
		return steady.ErrExecutionNotFound
	}

	if _, err = s.client.HSet(ctx, key, execToMap(e)).Result(); err != nil {
		return fmt.Errorf("steady/redis: update execution: %w", err)
	}
	return nil
}

// ListExecutions returns a job's executions in sequence order.
func (s *Store) ListExecutions(ctx context.Context, jobID id.JobID) ([]*job.Execution, error) {
	ids, err := s.client.ZRange(ctx, jobExecsKey(jobID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("steady/redis: list executions zrange: %w", err)
	}

	execs := make([]*job.Execution, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, execKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		e, mapErr := mapToExec(vals)
		if mapErr != nil {
			return nil, mapErr
		}
		execs = append(execs, e)
	}
	return execs, nil
}

// ── helpers ──

func execToMap(e *job.Execution) map[string]interface{} {
	m := map[string]interface{}{
		"id":          e.ID.String(),
		"job_id":      e.JobID.String(),
		"seq":         strconv.Itoa(e.Seq),
		"status":      string(e.Status),
		"error":       e.Error,
		"error_event": string(e.ErrorEvent),
		"created_at":  e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.FinishedAt != nil {
		m["finished_at"] = e.FinishedAt.Format(time.RFC3339Nano)
	} else {
		m["finished_at"] = ""
	}
	return m
}

func mapToExec(m map[string]string) (*job.Execution, error) {
	eID, err := id.ParseExecutionID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("steady/redis: parse execution id: %w", err)
	}
	jID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("steady/redis: parse job id: %w", err)
	}

	seq, _ := strconv.Atoi(m["seq"])                              //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &job.Execution{
		ID:         eID,
		JobID:      jID,
		Seq:        seq,
		Status:     job.Status(m["status"]),
		Error:      m["error"],
		ErrorEvent: job.ErrorEvent(m["error_event"]),
		CreatedAt:  createdAt,
	}

	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.FinishedAt = &t
	}

	return e, nil
}

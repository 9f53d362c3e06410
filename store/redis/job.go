package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/steady"
	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
)

// CreateJob stores the job as a Hash and, when queued, adds it to the
// queue's Sorted Set scored by scheduled time.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("steady/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return steady.ErrJobAlreadyExists
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	if j.State == job.StateQueued {
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: dueScore(j.ScheduledAt), Member: jID})
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("steady/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the queue
// Sorted Set in sync: only queued jobs are members, scored by their
// current scheduled time.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	prevQueue, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return steady.ErrJobNotFound
		}
		return fmt.Errorf("steady/redis: update job get queue: %w", err)
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZRem(ctx, queueKey(prevQueue), jID)
	if j.State == job.StateQueued {
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: dueScore(j.ScheduledAt), Member: jID})
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("steady/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job, its queue membership, and its executions.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get queue name before deleting to remove from sorted set.
	q, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return steady.ErrJobNotFound
		}
		return fmt.Errorf("steady/redis: delete job get queue: %w", err)
	}

	execIDs, err := s.client.ZRange(ctx, jobExecsKey(jID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("steady/redis: delete job list executions: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(q), jID)
	for _, eID := range execIDs {
		pipe.Del(ctx, execKey(eID))
	}
	pipe.Del(ctx, jobExecsKey(jID))

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("steady/redis: delete job: %w", err)
	}
	return nil
}

// DueJobs returns up to limit queued jobs whose scheduled time has
// arrived. The queue Sorted Sets order by scheduled time only, so
// priority ordering is applied after loading the due candidates. It
// does not claim jobs.
func (s *Store) DueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var due []*job.Job

	for _, q := range queues {
		ids, err := s.client.ZRangeByScore(ctx, queueKey(q), &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatFloat(dueScore(now), 'f', -1, 64),
			Count: int64(limit),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("steady/redis: due jobs zrange: %w", err)
		}

		for _, jID := range ids {
			j, getErr := s.getJobByKey(ctx, jobKey(jID))
			if getErr != nil {
				continue // deleted since the range query
			}
			if j.State != job.StateQueued {
				continue
			}
			due = append(due, j)
		}
	}

	sort.SliceStable(due, func(i, k int) bool {
		if due[i].Priority != due[k].Priority {
			return due[i].Priority > due[k].Priority
		}
		return due[i].ScheduledAt.Before(due[k].ScheduledAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("steady/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("steady/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// dueScore scores a queue Sorted Set member by scheduled time.
func dueScore(scheduledAt time.Time) float64 {
	return float64(scheduledAt.UTC().UnixMilli())
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":               j.ID.String(),
		"name":             j.Name,
		"queue":            j.Queue,
		"payload":          string(j.Payload),
		"state":            string(j.State),
		"priority":         strconv.Itoa(j.Priority),
		"scheduled_at":     j.ScheduledAt.UTC().Format(time.RFC3339Nano),
		"concurrency_key":  j.ConcurrencyKey,
		"worker_id":        j.WorkerID.String(),
		"executions_count": strconv.Itoa(j.ExecutionsCount),
		"error":            j.Error,
		"error_event":      string(j.ErrorEvent),
		"timeout":          strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":       j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.PerformedAt != nil {
		m["performed_at"] = j.PerformedAt.Format(time.RFC3339Nano)
	} else {
		m["performed_at"] = ""
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	} else {
		m["finished_at"] = ""
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("steady/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, steady.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("steady/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])                 //nolint:errcheck // best-effort parse from trusted Redis data
	execCount, _ := strconv.Atoi(m["executions_count"])        //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)       //nolint:errcheck // best-effort parse from trusted Redis data
	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])     //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: steady.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:              jID,
		Name:            m["name"],
		Queue:           m["queue"],
		Payload:         []byte(m["payload"]),
		State:           job.State(m["state"]),
		Priority:        priority,
		ScheduledAt:     scheduledAt,
		ConcurrencyKey:  m["concurrency_key"],
		ExecutionsCount: execCount,
		Error:           m["error"],
		ErrorEvent:      job.ErrorEvent(m["error_event"]),
		Timeout:         time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["performed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.PerformedAt = &t
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.FinishedAt = &t
	}

	return j, nil
}

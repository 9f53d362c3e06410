package cron

import (
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Entry is the runtime state of one recurring schedule. Entries are
// registered in code (see Scheduler.Add) and live in memory; the jobs
// they fire are persisted like any other.
type Entry struct {
	// Name is the unique identifier for this entry. It also forms the
	// advisory lock key "cron:<name>" claimed on every fire.
	Name string

	// Schedule is the cron expression.
	Schedule string

	// JobName is the job definition enqueued on each fire.
	JobName string

	// Payload is the serialized payload passed to every fired job.
	Payload []byte

	// Queue overrides the job definition's queue when non-empty.
	Queue string

	// Priority overrides the job definition's priority when non-zero.
	Priority int

	// Enabled gates firing. Added entries start enabled.
	Enabled bool

	// LastRunAt is when this scheduler instance last fired the entry.
	LastRunAt *time.Time

	// NextRunAt is the next due time.
	NextRunAt time.Time

	// sched is the parsed schedule.
	sched cronlib.Schedule
}

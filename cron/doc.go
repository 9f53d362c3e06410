// Package cron provides recurring job schedules on top of the engine.
//
// Entries are registered in code at startup, the way job definitions
// are. The [Scheduler] evaluates due entries on every tick, claims each
// fire through the store's advisory locks (key "cron:<name>"), enqueues
// the entry's job, and advances the next run time.
//
// # Registering a schedule
//
//	engine.RegisterCron(a, &cron.Definition[ReportInput]{
//	    Name:     "daily-report",
//	    Schedule: "0 9 * * *",
//	    JobName:  "generate-report",
//	    Payload:  ReportInput{Format: "pdf"},
//	})
//
// Schedules use standard 5-field cron expressions or descriptors like
// "@every 30s" and "@hourly".
//
// # Multi-process deployments
//
// The advisory lock makes concurrent scheduler instances skip rather
// than double-fire a due entry, but each instance tracks next-run times
// independently: run the scheduler in one process (typically the one
// hosting the capsule) when exact once-per-tick firing matters.
package cron

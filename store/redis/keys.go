package redis

// Redis key naming conventions for steady data.
// All keys are prefixed with "steady:" to avoid collisions.

const keyPrefix = "steady:"

// jobKey returns the key for a job entity: steady:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set of queued job IDs for a queue,
// scored by scheduled time: steady:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// execKey returns the key for an execution entity: steady:exec:{id}
func execKey(id string) string { return keyPrefix + "exec:" + id }

// jobExecsKey returns the Sorted Set of a job's execution IDs, scored
// by sequence number: steady:job_execs:{jobID}
func jobExecsKey(jobID string) string { return keyPrefix + "job_execs:" + jobID }

// lockKey returns the key for an advisory lock: steady:lock:{key}
func lockKey(key string) string { return keyPrefix + "lock:" + key }

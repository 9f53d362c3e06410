// Package queue defines per-queue rate limiting and concurrency caps.
//
// Queues are named channels that group related jobs. Jobs carry a Queue
// field that determines which queue they belong to. The capsule polls the
// queues listed in [steady.Config.Queues] (default: ["default"]).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "email",
//	    MaxConcurrency: 5,      // max 5 concurrent email jobs
//	    RateLimit:      10,     // max 10 jobs/s dequeued from this queue
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// # Manager
//
// [Manager] enforces the limits at dequeue time. It uses a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate for
// concurrency limits.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName) {
//		defer m.Release(queueName)
//		// process the job
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide concurrency.
package queue

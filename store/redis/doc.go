// Package redis implements store.Store using Redis for high-throughput
// ephemeral workloads. Jobs and executions are stored as Hashes, each
// queue keeps a Sorted Set of queued job IDs scored by scheduled time,
// and advisory locks are SET NX keys with a TTL.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
//
// The caller owns the Redis client lifecycle; Close never closes it.
package redis

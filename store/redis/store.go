package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
	"github.com/xraph/steady/store"
)

// Compile-time interface checks.
var (
	_ job.Store   = (*Store)(nil)
	_ store.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockTTL sets the advisory lock expiry. Size it above the longest
// expected dispatch, blocking retry waits included; a lock that expires
// mid-dispatch lets a second worker claim the same job.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) { s.lockTTL = ttl }
}

// Store implements the composite store.Store interface backed by Redis.
//
// Advisory locks are SET NX keys holding this instance's owner token
// with a TTL, so locks held by a crashed process expire on their own.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger

	// owner tags this instance's lock keys.
	owner   string
	lockTTL time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:  client,
		logger:  slog.Default(),
		owner:   id.NewWorkerID().String(),
		lockTTL: 15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle. Held
// locks are left to expire via their TTL.
func (s *Store) Close() error { return nil }

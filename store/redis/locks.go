package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock key only when the caller still owns it,
// so one instance cannot release a lock that expired and was re-taken.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// AcquireLock attempts to take the advisory lock for the given key via
// SET NX with a TTL. Returns false without error when another holder
// (this instance included) has it.
func (s *Store) AcquireLock(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(key), s.owner, s.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("steady/redis: acquire lock %q: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock releases an advisory lock held by this store instance.
// Releasing an unheld key, or one another owner holds, is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	err := releaseScript.Run(ctx, s.client, []string{lockKey(key)}, s.owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("steady/redis: release lock %q: %w", key, err)
	}
	return nil
}

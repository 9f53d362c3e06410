package postgres

import (
	"context"
	"fmt"
)

// AcquireLock attempts to take the PostgreSQL advisory lock for the
// given key. The lock is session-scoped, so the acquiring connection is
// pinned out of the pool until ReleaseLock (or Close) runs. Keys hash
// to 64-bit lock IDs via hashtextextended.
func (s *Store) AcquireLock(ctx context.Context, key string) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	// This store already holds the key on a pinned session.
	if _, held := s.lockConns[key]; held {
		return false, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("steady/postgres: acquire lock conn: %w", err)
	}

	var acquired bool
	err = conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key,
	).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("steady/postgres: acquire lock %q: %w", key, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	s.lockConns[key] = conn
	return true, nil
}

// ReleaseLock releases an advisory lock held by this store and returns
// its pinned connection to the pool. Releasing an unheld key is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	s.lockMu.Lock()
	conn, held := s.lockConns[key]
	if held {
		delete(s.lockConns, key)
	}
	s.lockMu.Unlock()

	if !held {
		return nil
	}

	defer conn.Release()

	_, err := conn.Exec(ctx,
		`SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("steady/postgres: release lock %q: %w", key, err)
	}
	return nil
}

package sqlite

import (
	"context"
	"fmt"
	"time"
)

// AcquireLock attempts to take the lock row for the given key. Expired
// rows from dead owners are swept first, then an INSERT OR IGNORE races
// for the key: whoever lands the row holds the lock until ReleaseLock,
// Close, or expiry.
func (s *Store) AcquireLock(ctx context.Context, key string) (bool, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM steady_locks WHERE key = ? AND expires_at <= ?`,
		key, now,
	)
	if err != nil {
		return false, fmt.Errorf("steady/sqlite: sweep lock %q: %w", key, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO steady_locks (key, owner, expires_at) VALUES (?, ?, ?)`,
		key, s.owner, now.Add(s.lockTTL),
	)
	if err != nil {
		return false, fmt.Errorf("steady/sqlite: acquire lock %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("steady/sqlite: acquire lock %q: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseLock releases a lock held by this store instance. Releasing an
// unheld key, or one another owner holds, is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM steady_locks WHERE key = ? AND owner = ?`,
		key, s.owner,
	)
	if err != nil {
		return fmt.Errorf("steady/sqlite: release lock %q: %w", key, err)
	}
	return nil
}

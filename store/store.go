package store

import (
	"context"

	"github.com/xraph/steady/job"
)

// Store is the aggregate persistence interface: the job persistence
// contract plus backend lifecycle. A single backend (postgres, sqlite,
// redis, memory) implements all of it.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection and releases every advisory
	// lock this store holds.
	Close() error
}

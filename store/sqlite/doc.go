// Package sqlite implements the store on an embedded SQLite database
// via database/sql and the modernc.org/sqlite driver (pure Go, no cgo).
//
// SQLite has no session-scoped advisory locks, so claiming uses a lock
// table with an owner token and expiry: a crashed process's rows expire
// and its jobs become claimable again. Suited to single-node
// deployments; use the postgres store for multi-process clusters.
package sqlite

// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: session-scoped advisory locks for job claiming, embedded
// SQL migrations, and a partial index backing the due-job poll query.
package postgres

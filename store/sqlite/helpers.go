package sqlite

import (
	"database/sql"
	"errors"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks for a SQLite unique or primary key violation.
func isDuplicateKey(err error) bool {
	return hasCode(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) ||
		hasCode(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE)
}

// isForeignKeyViolation checks for a SQLite foreign key violation.
func isForeignKeyViolation(err error) bool {
	return hasCode(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY)
}

func hasCode(err error, code int) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == code
	}
	return false
}

// Package storeerr centralizes recognition of the store's "expected
// constraint violation" error kind by SQLite error code rather than by
// matching driver error strings.
package storeerr

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsConstraintViolation reports whether err is a primary-key or
// unique-constraint violation from the underlying SQLite driver. Such
// errors are a normal, non-logged outcome: duplicate (address_id, hash)
// pairs from re-hashed addresses and duplicate ids in to_delete are
// expected, not bugs.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}

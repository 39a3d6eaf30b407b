package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Domain-specific errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrHandleClosed is returned when an operation is attempted on a
	// handle that has been closed and not reopened.
	ErrHandleClosed = errors.New("database: handle is closed")
)

// IsTransientLock reports whether err is a temporary lock-contention
// failure (SQLITE_BUSY or SQLITE_LOCKED). These failures are recoverable:
// another connection or OS process holds a lock that will be released, so
// the operation is worth retrying after a short delay.
func IsTransientLock(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsConnectionLost reports whether err indicates the handle is no longer
// usable and must be reopened before further statements can succeed.
func IsConnectionLost(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, ErrHandleClosed) {
		return true
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrIoErr:
			return true
		}
	}
	return false
}

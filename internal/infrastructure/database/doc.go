// Package database provides the single SQLite connection handle for sqlworker.
//
// This package manages:
//   - Opening the database file with WAL mode and busy-timeout pragmas
//   - Replaying configured init statements on open and on every reopen
//   - Reopen support for recovery after connection loss
//   - Classification of driver failures (transient lock vs connection lost)
//
// Ownership:
//
// The handle is configured with a connection pool of exactly one and is
// intended to be driven by a single goroutine — the worker dispatch loop.
// No other goroutine should touch it. All cross-thread access to the
// database goes through the worker's Request/Response contract instead.
//
// Security Considerations:
//   - All statements use parameterised queries (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	conn, err := database.Open(database.Config{
//	    Path:        "data/app.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
package database

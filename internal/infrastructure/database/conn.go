package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// Conn owns the single physical SQLite connection.
//
// SQLite does not tolerate concurrent use of one connection from multiple
// threads, so Conn is configured with a pool size of exactly one and is
// intended to be driven by a single goroutine (the worker dispatch loop).
// Conn itself does no serialization beyond that; callers must not share it.
//
// Reopen replaces the underlying handle after connection loss, replaying
// the configured init statements.
type Conn struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	cfg  Config
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// Recommended: true (allows concurrent reads during writes).
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors under contention.
	BusyTimeout int

	// InitStatements is an ordered list of statements executed once after
	// every open and reopen (engine tuning pragmas and similar). The
	// statements are opaque text; they are not inspected or rewritten.
	InitStatements []string
}

// Open creates a new database connection with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Sets appropriate file permissions (0600)
//  5. Verifies the connection with a ping
//  6. Replays the configured init statements in order
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *Conn: Connected database handle
//   - error: If connection or configuration fails
func Open(cfg Config) (*Conn, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	c := &Conn{
		path: cfg.Path,
		cfg:  cfg,
	}

	db, err := c.open()
	if err != nil {
		return nil, err
	}
	c.db = db

	return c, nil
}

// open builds the connection string, opens the handle, verifies it and
// replays init statements. Shared by Open and Reopen.
func (c *Conn) open() (*sql.DB, error) {
	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		c.cfg.Path,
		c.cfg.BusyTimeout*msPerSecond,
	)

	if c.cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection only: the dispatch loop is the single writer, and a
	// pool of one keeps explicit BEGIN/COMMIT pinned to the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Replay init statements in order
	for _, stmt := range c.cfg.InitStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("executing init statement %q: %w", stmt, err)
		}
	}

	// Set file permissions (owner read/write only)
	// Ignore error - file might not exist yet on first run, will be set after first write
	_ = os.Chmod(c.cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return db, nil
}

// Reopen discards the current handle and opens a fresh one, replaying the
// configured init statements. Used by the retry controller after the
// connection is detected as lost.
//
// Parameters:
//   - ctx: Context for timeout/cancellation of the verification ping
//
// Returns:
//   - error: If the new handle cannot be opened or verified
func (c *Conn) Reopen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		c.db.Close() //nolint:errcheck // Old handle is already suspect
		c.db = nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("reopening database: %w", ctx.Err())
	default:
	}

	db, err := c.open()
	if err != nil {
		return fmt.Errorf("reopening database: %w", err)
	}
	c.db = db
	return nil
}

// Close closes the database connection gracefully.
// It should be called when the worker shuts down.
//
// Returns:
//   - error: If closing fails
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	c.db = nil
	return nil
}

// Path returns the filesystem path to the database file.
func (c *Conn) Path() string {
	return c.path
}

// HealthCheck verifies the database is accessible and functioning.
// It performs a simple query to ensure the connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Conn) HealthCheck(ctx context.Context) error {
	db, err := c.handle()
	if err != nil {
		return err
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
// Useful for monitoring and debugging connection issues.
func (c *Conn) Stats() sql.DBStats {
	db, err := c.handle()
	if err != nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

// ExecContext executes a statement that doesn't return rows (INSERT, UPDATE, DELETE, DDL).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL statement with ? placeholders
//   - args: Arguments for placeholders
//
// Returns:
//   - sql.Result: Contains LastInsertId and RowsAffected
//   - error: If execution fails
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

// QueryContext executes a statement that returns rows (SELECT).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL statement with ? placeholders
//   - args: Arguments for placeholders
//
// Returns:
//   - *sql.Rows: Result rows; callers must Close them
//   - error: If execution fails
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

// handle returns the current underlying handle, or ErrHandleClosed if the
// connection has been closed and not reopened.
func (c *Conn) handle() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrHandleClosed
	}
	return c.db, nil
}

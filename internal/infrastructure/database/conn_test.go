package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

// TestOpen verifies database connection establishment.
func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := Open(Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer conn.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

		conn, err := Open(Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer conn.Close() //nolint:errcheck // Test cleanup

		dir := filepath.Dir(dbPath)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("replays init statements", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := Open(Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
			InitStatements: []string{
				"CREATE TABLE IF NOT EXISTS boot_marker (id INTEGER PRIMARY KEY)",
			},
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer conn.Close() //nolint:errcheck // Test cleanup

		ctx := context.Background()
		if _, err := conn.ExecContext(ctx, "INSERT INTO boot_marker (id) VALUES (1)"); err != nil {
			t.Errorf("init statement table not usable: %v", err)
		}
	})

	t.Run("fails on invalid init statement", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		_, err := Open(Config{
			Path:           dbPath,
			BusyTimeout:    5,
			InitStatements: []string{"NOT VALID SQL"},
		})
		if err == nil {
			t.Fatal("Open() expected error for invalid init statement, got nil")
		}
	})

	t.Run("returns path", func(t *testing.T) {
		conn := openTestConn(t)
		defer conn.Close() //nolint:errcheck // Test cleanup

		if conn.Path() == "" {
			t.Error("Path() returned empty string")
		}
	})
}

// TestReopen verifies the handle can be replaced after close.
func TestReopen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	conn, err := Open(Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
		InitStatements: []string{
			"CREATE TABLE IF NOT EXISTS boot_marker (id INTEGER PRIMARY KEY)",
		},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	// Simulate a lost handle
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT 1"); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("ExecContext() after close error = %v, want ErrHandleClosed", err)
	}

	if err := conn.Reopen(ctx); err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}

	// Init statements replayed, handle usable again
	if err := conn.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after Reopen error = %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO boot_marker (id) VALUES (2)"); err != nil {
		t.Errorf("ExecContext() after Reopen error = %v", err)
	}
}

// TestHealthCheck verifies the health check functionality.
func TestHealthCheck(t *testing.T) {
	conn := openTestConn(t)
	defer conn.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

// TestClose verifies graceful shutdown.
func TestClose(t *testing.T) {
	conn := openTestConn(t)

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Second close should not error
	if err := conn.Close(); err != nil {
		t.Errorf("Close() on closed handle error = %v", err)
	}
}

// TestExecContext verifies statement execution.
func TestExecContext(t *testing.T) {
	conn := openTestConn(t)
	defer conn.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `
		CREATE TABLE test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("ExecContext() CREATE error = %v", err)
	}

	result, err := conn.ExecContext(ctx, "INSERT INTO test_table (name) VALUES (?)", "test")
	if err != nil {
		t.Fatalf("ExecContext() INSERT error = %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId() error = %v", err)
	}
	if id != 1 {
		t.Errorf("LastInsertId() = %v, want 1", id)
	}
}

// TestStats verifies the single-writer pool configuration.
func TestStats(t *testing.T) {
	conn := openTestConn(t)
	defer conn.Close() //nolint:errcheck // Test cleanup

	stats := conn.Stats()
	if stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", stats.MaxOpenConnections)
	}
}

// TestIsTransientLock verifies lock-contention classification.
func TestIsTransientLock(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "busy",
			err:  sqlite3.Error{Code: sqlite3.ErrBusy},
			want: true,
		},
		{
			name: "locked",
			err:  sqlite3.Error{Code: sqlite3.ErrLocked},
			want: true,
		},
		{
			name: "wrapped busy",
			err:  fmt.Errorf("executing: %w", sqlite3.Error{Code: sqlite3.ErrBusy}),
			want: true,
		},
		{
			name: "constraint violation",
			err:  sqlite3.Error{Code: sqlite3.ErrConstraint},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientLock(tt.err); got != tt.want {
				t.Errorf("IsTransientLock(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestIsConnectionLost verifies connection-loss classification.
func TestIsConnectionLost(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "bad conn",
			err:  driver.ErrBadConn,
			want: true,
		},
		{
			name: "handle closed",
			err:  ErrHandleClosed,
			want: true,
		},
		{
			name: "cantopen",
			err:  sqlite3.Error{Code: sqlite3.ErrCantOpen},
			want: true,
		},
		{
			name: "ioerr",
			err:  fmt.Errorf("executing: %w", sqlite3.Error{Code: sqlite3.ErrIoErr}),
			want: true,
		},
		{
			name: "busy is not lost",
			err:  sqlite3.Error{Code: sqlite3.ErrBusy},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionLost(tt.err); got != tt.want {
				t.Errorf("IsConnectionLost(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// openTestConn creates a temporary database handle for testing.
func openTestConn(t *testing.T) *Conn {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	conn, err := Open(Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	return conn
}

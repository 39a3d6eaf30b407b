package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/sqlworker/internal/worker"
)

// ledgerSchema is created lazily before the first ledger operation.
const ledgerSchema = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// Client is the slice of the worker the ledger needs. worker.Worker
// satisfies it.
type Client interface {
	Exec(ctx context.Context, query string, args ...any) (*worker.Response, error)
	WithTransaction(ctx context.Context, fn func() error) error
}

// Record is one applied migration in the ledger.
type Record struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// Ledger tracks applied schema migrations through a worker client.
//
// Thread Safety: the ledger holds no state of its own; concurrent calls
// serialize through the worker like any other statements.
type Ledger struct {
	client Client
}

// New creates a Ledger over the given worker client.
func New(client Client) *Ledger {
	return &Ledger{client: client}
}

// Apply executes upScript and records version in the ledger, inside one
// transaction. Returns false without executing anything if version is
// already recorded, making repeated runs idempotent.
func (l *Ledger) Apply(ctx context.Context, version, name, upScript string) (bool, error) {
	if version == "" {
		return false, ErrEmptyVersion
	}
	statements := splitStatements(upScript)
	if len(statements) == 0 {
		return false, ErrEmptyScript
	}
	if err := l.ensureTable(ctx); err != nil {
		return false, err
	}

	applied := false
	err := l.client.WithTransaction(ctx, func() error {
		recorded, err := l.isRecorded(ctx, version)
		if err != nil {
			return err
		}
		if recorded {
			return nil
		}

		for _, stmt := range statements {
			if _, err := l.client.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", stmt, err)
			}
		}

		if _, err := l.client.Exec(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			version, name, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("recording version %s: %w", version, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("applying migration %s: %w", version, err)
	}
	return applied, nil
}

// Rollback executes downScript and removes version from the ledger,
// inside one transaction. Returns false without executing anything if
// version is not recorded.
func (l *Ledger) Rollback(ctx context.Context, version, downScript string) (bool, error) {
	if version == "" {
		return false, ErrEmptyVersion
	}
	statements := splitStatements(downScript)
	if len(statements) == 0 {
		return false, ErrEmptyScript
	}
	if err := l.ensureTable(ctx); err != nil {
		return false, err
	}

	rolledBack := false
	err := l.client.WithTransaction(ctx, func() error {
		recorded, err := l.isRecorded(ctx, version)
		if err != nil {
			return err
		}
		if !recorded {
			return nil
		}

		for _, stmt := range statements {
			if _, err := l.client.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", stmt, err)
			}
		}

		if _, err := l.client.Exec(ctx,
			"DELETE FROM schema_migrations WHERE version = ?", version,
		); err != nil {
			return fmt.Errorf("removing version %s: %w", version, err)
		}
		rolledBack = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rolling back migration %s: %w", version, err)
	}
	return rolledBack, nil
}

// Applied returns the ledger's records ordered by version.
func (l *Ledger) Applied(ctx context.Context) ([]Record, error) {
	if err := l.ensureTable(ctx); err != nil {
		return nil, err
	}

	resp, err := l.client.Exec(ctx,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}

	records := make([]Record, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		r := Record{
			Version: row[0].(string),
			Name:    row[1].(string),
		}
		// Format is controlled by Apply; a parse failure leaves zero time.
		r.AppliedAt, _ = time.Parse(time.RFC3339, row[2].(string)) //nolint:errcheck // Format is controlled
		records = append(records, r)
	}
	return records, nil
}

// ApplyFS applies every pending ".up.sql" migration found in dir of
// fsys, in version order. Filenames follow the
// "<version>_<name>.up.sql" convention. Returns how many migrations
// were newly applied.
func (l *Ledger) ApplyFS(ctx context.Context, fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("reading migration dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	applied := 0
	for _, filename := range names {
		version, name := parseFilename(filename)
		if version == "" {
			continue
		}

		script, err := fs.ReadFile(fsys, joinPath(dir, filename))
		if err != nil {
			return applied, fmt.Errorf("reading %s: %w", filename, err)
		}

		ok, err := l.Apply(ctx, version, name, string(script))
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// ensureTable creates the ledger table if missing.
func (l *Ledger) ensureTable(ctx context.Context) error {
	if _, err := l.client.Exec(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("creating ledger table: %w", err)
	}
	return nil
}

// isRecorded reports whether version exists in the ledger.
func (l *Ledger) isRecorded(ctx context.Context, version string) (bool, error) {
	resp, err := l.client.Exec(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	)
	if err != nil {
		return false, fmt.Errorf("checking version %s: %w", version, err)
	}
	return resp.Rows[0][0].(int64) > 0, nil
}

// splitStatements breaks a script into individual statements on
// semicolons, dropping empty fragments. Semicolons inside literals are
// not recognized.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseFilename extracts version and name from
// "<version>_<name>.up.sql". Returns an empty version for filenames
// that don't match.
func parseFilename(filename string) (version, name string) {
	base := strings.TrimSuffix(filename, ".up.sql")
	idx := strings.Index(base, "_")
	if idx <= 0 {
		return "", ""
	}
	return base[:idx], base[idx+1:]
}

// joinPath joins fs.FS paths, which always use forward slashes.
func joinPath(dir, file string) string {
	if dir == "" || dir == "." {
		return file
	}
	return dir + "/" + file
}

package worker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/sqlworker/internal/infrastructure/database"
)

// executor is the slice of the connection handle the dispatch loop needs.
// database.Conn satisfies it; tests substitute a fake to inject transient
// and connection-loss failures.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Reopen(ctx context.Context) error
	Close() error
}

// RetryPolicy bounds retry-on-transient-failure behaviour for a single
// operation against the connection handle.
type RetryPolicy struct {
	// MaxRetries is how many times a failed attempt is retried.
	// Zero means fail on the first transient error.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy mirrors the config defaults for library use.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// backoff returns the delay before the given retry attempt (0-based).
// The delay doubles per attempt, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// withRetry runs op, retrying transient lock failures with backoff and
// reopening the connection on connection loss.
//
// Failure classification:
//   - transient lock (SQLITE_BUSY/LOCKED): sleep and retry, up to
//     MaxRetries attempts; then ErrLockTimeout.
//   - connection lost: reopen the handle (replaying init statements) and
//     retry; if the reopen itself fails, ErrConnectionUnavailable.
//   - anything else (syntax, constraint): deterministic, returned
//     immediately without retry.
func (w *Worker) withRetry(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		switch {
		case err == nil:
			return nil

		case database.IsTransientLock(err):
			if attempt >= w.retry.MaxRetries {
				return fmt.Errorf("%w after %d attempts: %w", ErrLockTimeout, attempt+1, err)
			}
			delay := w.retry.backoff(attempt)
			w.logger.Debug("transient lock, backing off",
				"attempt", attempt+1,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
			}

		case database.IsConnectionLost(err):
			if attempt >= w.retry.MaxRetries {
				return fmt.Errorf("%w after %d attempts: %w", ErrConnectionUnavailable, attempt+1, err)
			}
			w.logger.Warn("connection lost, reopening", "error", err)
			if reopenErr := w.conn.Reopen(ctx); reopenErr != nil {
				return fmt.Errorf("%w: %w", ErrConnectionUnavailable, reopenErr)
			}

		default:
			// Deterministic statement error - retrying cannot help.
			return err
		}
	}
}

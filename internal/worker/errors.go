package worker

import "errors"

// Domain-specific errors for worker operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned when a statement is submitted after Close().
	ErrClosed = errors.New("worker: closed")

	// ErrUnknownToken is returned by Await for a token that was never
	// issued or whose Response has already been consumed.
	ErrUnknownToken = errors.New("worker: unknown or already consumed token")

	// ErrTransactionActive is returned when BEGIN is executed while a
	// transaction is already open. The open transaction is unaffected.
	ErrTransactionActive = errors.New("worker: transaction already active")

	// ErrNoTransaction is returned when COMMIT or ROLLBACK is executed
	// without an open transaction.
	ErrNoTransaction = errors.New("worker: no active transaction")

	// ErrLockTimeout is returned when a transient lock persisted through
	// the whole retry budget.
	ErrLockTimeout = errors.New("worker: lock retry budget exhausted")

	// ErrConnectionUnavailable is returned when the connection was lost
	// and could not be reopened.
	ErrConnectionUnavailable = errors.New("worker: connection unavailable")

	// ErrInvalidIdentifier is returned by the structured convenience
	// operations when a table or column name fails validation.
	ErrInvalidIdentifier = errors.New("worker: invalid identifier")
)

package worker

import (
	"context"
	"fmt"
	"sync"
)

// txState tracks whether an explicit transaction is open.
//
// Transitions happen only on the dispatch goroutine, which is what makes
// two concurrent BEGINs serialize into exactly one winner. The mutex
// exists for InTransaction reads from producer goroutines.
type txState struct {
	mu       sync.Mutex
	active   bool
	openedBy Token
}

// InTransaction reports whether an explicit transaction is currently open.
func (w *Worker) InTransaction() bool {
	w.tx.mu.Lock()
	defer w.tx.mu.Unlock()
	return w.tx.active
}

// executeControl applies a transaction state transition and, when the
// transition is legal, executes the corresponding SQL control statement.
// Illegal transitions fail without touching the state or the connection.
func (w *Worker) executeControl(ctx context.Context, req *request) *Response {
	resp := &Response{Token: req.token}

	switch req.control {
	case ControlBegin:
		if w.InTransaction() {
			resp.Err = ErrTransactionActive
			return resp
		}
		if err := w.execControlSQL(ctx, "BEGIN"); err != nil {
			resp.Err = err
			return resp
		}
		w.tx.mu.Lock()
		w.tx.active = true
		w.tx.openedBy = req.token
		w.tx.mu.Unlock()

	case ControlCommit:
		if !w.InTransaction() {
			resp.Err = ErrNoTransaction
			return resp
		}
		if err := w.execControlSQL(ctx, "COMMIT"); err != nil {
			resp.Err = err
			return resp
		}
		w.clearTransaction()

	case ControlRollback:
		if !w.InTransaction() {
			resp.Err = ErrNoTransaction
			return resp
		}
		if err := w.execControlSQL(ctx, "ROLLBACK"); err != nil {
			resp.Err = err
			return resp
		}
		w.clearTransaction()

	default:
		resp.Err = fmt.Errorf("worker: unknown control operation %d", req.control)
	}

	return resp
}

// execControlSQL runs a BEGIN/COMMIT/ROLLBACK statement through the retry
// controller. BEGIN can hit SQLITE_BUSY like any other statement when
// another process holds the write lock.
func (w *Worker) execControlSQL(ctx context.Context, stmt string) error {
	return w.withRetry(ctx, func() error {
		_, err := w.conn.ExecContext(ctx, stmt)
		return err
	})
}

// clearTransaction resets the state machine to Idle.
func (w *Worker) clearTransaction() {
	w.tx.mu.Lock()
	w.tx.active = false
	w.tx.openedBy = ""
	w.tx.mu.Unlock()
}

// Begin opens an explicit transaction and waits for the outcome.
// Fails with ErrTransactionActive if one is already open.
func (w *Worker) Begin(ctx context.Context) error {
	return w.control(ctx, ControlBegin)
}

// Commit commits the open transaction and waits for the outcome.
// Fails with ErrNoTransaction if none is open.
func (w *Worker) Commit(ctx context.Context) error {
	return w.control(ctx, ControlCommit)
}

// Rollback rolls back the open transaction and waits for the outcome.
// Fails with ErrNoTransaction if none is open.
func (w *Worker) Rollback(ctx context.Context) error {
	return w.control(ctx, ControlRollback)
}

// control submits a control operation and awaits its Response.
func (w *Worker) control(ctx context.Context, op ControlOp) error {
	token, err := w.SubmitControl(op)
	if err != nil {
		return err
	}
	resp, err := w.Await(ctx, token)
	if err != nil {
		return err
	}
	return resp.Err
}

// WithTransaction runs fn inside an explicit transaction.
//
// BEGIN is issued on entry. If fn returns nil the transaction is
// committed; if fn returns an error, or panics, the transaction is
// rolled back. The transaction therefore never remains open past the
// call, regardless of exit path. The commit/rollback decision is made by
// inspecting fn's returned error, not by exception flow.
//
// Statements inside fn should be submitted through the same Worker; they
// join the open transaction because the dispatch loop is the single
// executor.
func (w *Worker) WithTransaction(ctx context.Context, fn func() error) error {
	if err := w.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := w.Rollback(ctx); rbErr != nil {
				w.logger.Error("rollback after panic failed", "error", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		if rbErr := w.Rollback(ctx); rbErr != nil {
			w.logger.Error("rollback failed", "error", rbErr)
			return fmt.Errorf("rolling back after %w: %w", err, rbErr)
		}
		return err
	}

	return w.Commit(ctx)
}

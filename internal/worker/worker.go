package worker

import (
	"context"
	"sync"

	"github.com/nerrad567/sqlworker/internal/infrastructure/database"
)

// Logger defines the logging interface for the worker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Worker.
type Options struct {
	// Retry bounds transient-failure retries. Zero value means
	// DefaultRetryPolicy().
	Retry RetryPolicy

	// Logger receives structured log output. Nil means no logging.
	Logger Logger
}

// pendingResponse holds the correlation slot for one in-flight Request.
type pendingResponse struct {
	done chan struct{}
	resp *Response
}

// Worker provides serialized, thread-safe access to a single SQLite
// connection.
//
// Arbitrarily many goroutines may Submit statements concurrently; exactly
// one dedicated dispatch goroutine executes them one at a time, in strict
// enqueue order, against the connection handle. Results are returned
// through per-request correlation tokens. This gives callers the same
// serializability a single synchronous client would observe: no two
// statements ever execute concurrently, and a read submitted after a
// write always sees that write.
//
// Thread Safety:
//   - Submit, SubmitControl, Await, hook registration and QueueLen are
//     safe for concurrent use from multiple goroutines.
//   - The connection handle is touched only by the dispatch goroutine.
type Worker struct {
	conn   executor
	queue  *requestQueue
	hooks  *HookRegistry
	retry  RetryPolicy
	logger Logger

	mu      sync.Mutex
	pending map[Token]*pendingResponse
	closed  bool
	seq     uint64

	tx txState

	done chan struct{}
}

// New creates a Worker around an open connection handle and starts its
// dispatch goroutine. The Worker takes ownership of the handle; it is
// closed by Close() after the queue drains.
func New(conn *database.Conn, opts Options) *Worker {
	return newWorker(conn, opts)
}

// newWorker is the executor-typed constructor shared with tests.
func newWorker(conn executor, opts Options) *Worker {
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	w := &Worker{
		conn:    conn,
		queue:   newRequestQueue(),
		hooks:   newHookRegistry(),
		retry:   retry,
		logger:  logger,
		pending: make(map[Token]*pendingResponse),
		done:    make(chan struct{}),
	}

	go w.run()
	return w
}

// Submit enqueues a raw statement and returns its correlation token.
//
// Submit never blocks on execution; it is a pure enqueue. The statement
// executes later, in enqueue order, on the dispatch goroutine. Use Await
// to obtain the Response, or discard the token for fire-and-forget.
//
// Returns ErrClosed after Close().
func (w *Worker) Submit(query string, args ...any) (Token, error) {
	return w.submit(&request{query: query, args: args})
}

// SubmitControl enqueues a transaction control operation
// (BEGIN, COMMIT or ROLLBACK) and returns its correlation token.
//
// Returns ErrClosed after Close().
func (w *Worker) SubmitControl(op ControlOp) (Token, error) {
	return w.submit(&request{control: op})
}

// submit registers the correlation slot and enqueues the request.
func (w *Worker) submit(req *request) (Token, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return "", ErrClosed
	}
	w.seq++
	req.seq = w.seq
	req.token = newToken()
	w.pending[req.token] = &pendingResponse{done: make(chan struct{})}
	w.mu.Unlock()

	if !w.queue.Enqueue(req) {
		// Close() raced us; withdraw the correlation slot.
		w.mu.Lock()
		delete(w.pending, req.token)
		w.mu.Unlock()
		return "", ErrClosed
	}
	return req.token, nil
}

// Await blocks until the Response for token exists, then returns it.
//
// Each Response is delivered exactly once: a second Await on the same
// token returns ErrUnknownToken. If ctx is cancelled the wait is
// abandoned but the Request still executes and its Response remains
// stored, retrievable by a later Await.
func (w *Worker) Await(ctx context.Context, token Token) (*Response, error) {
	w.mu.Lock()
	p, ok := w.pending[token]
	w.mu.Unlock()
	if !ok {
		return nil, ErrUnknownToken
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	// Consume exactly once. A concurrent Await on the same token loses
	// the race and sees ErrUnknownToken.
	w.mu.Lock()
	if _, ok := w.pending[token]; !ok {
		w.mu.Unlock()
		return nil, ErrUnknownToken
	}
	delete(w.pending, token)
	w.mu.Unlock()

	return p.resp, nil
}

// Exec submits a statement and awaits its Response.
//
// A statement failure is returned both as the error and in Response.Err,
// so callers can use either convention.
func (w *Worker) Exec(ctx context.Context, query string, args ...any) (*Response, error) {
	token, err := w.Submit(query, args...)
	if err != nil {
		return nil, err
	}
	resp, err := w.Await(ctx, token)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err
}

// RegisterHook adds a statement observer and returns its handle.
// See HookRegistry for ordering and duplicate semantics.
func (w *Worker) RegisterHook(kind HookKind, fn Hook) HookHandle {
	return w.hooks.Register(kind, fn)
}

// UnregisterHook removes a previously registered observer.
func (w *Worker) UnregisterHook(h HookHandle) bool {
	return w.hooks.Unregister(h)
}

// QueueLen returns the number of requests waiting for execution.
func (w *Worker) QueueLen() int {
	return w.queue.Len()
}

// Close drains the queue, closes the connection handle and transitions
// the worker to a terminal closed state.
//
// Requests submitted before Close still execute and their Responses stay
// retrievable; submissions after Close fail immediately with ErrClosed.
// An explicit transaction still open when the handle closes is rolled
// back by the engine.
func (w *Worker) Close() error {
	w.mu.Lock()
	alreadyClosed := w.closed
	w.closed = true
	w.mu.Unlock()

	w.queue.Close()
	<-w.done

	if alreadyClosed {
		return nil
	}
	w.logger.Info("worker closed")
	return w.conn.Close()
}

// run is the dispatch loop: the only goroutine that touches the
// connection handle. It executes requests strictly in enqueue order and
// exits once the queue is closed and drained.
func (w *Worker) run() {
	defer close(w.done)

	for {
		req, ok := w.queue.Dequeue()
		if !ok {
			return
		}

		resp := w.execute(context.Background(), req)
		w.publish(req.token, resp)
	}
}

// execute runs one request. Per-request failures are captured into the
// Response; they never stop the loop.
func (w *Worker) execute(ctx context.Context, req *request) *Response {
	if req.control != 0 {
		return w.executeControl(ctx, req)
	}
	return w.executeStatement(ctx, req)
}

// executeStatement runs a raw statement through the retry controller,
// fires hooks on success and builds the Response.
func (w *Worker) executeStatement(ctx context.Context, req *request) *Response {
	resp := &Response{Token: req.token}
	kind := classify(req.query)

	var err error
	if kind == KindSelect {
		resp.Rows, err = w.queryRows(ctx, req.query, req.args)
	} else {
		err = w.withRetry(ctx, func() error {
			result, execErr := w.conn.ExecContext(ctx, req.query, req.args...)
			if execErr != nil {
				return execErr
			}
			// Both are best-effort on drivers; sqlite3 supports them.
			resp.RowsAffected, _ = result.RowsAffected() //nolint:errcheck // Driver supports it
			resp.LastInsertID, _ = result.LastInsertId() //nolint:errcheck // Driver supports it
			return nil
		})
	}

	if err != nil {
		w.logger.Debug("statement failed",
			"query", req.query,
			"error", err,
		)
		resp.Err = err
		return resp
	}

	w.dispatchHooks(kind, req.query, req.args)
	return resp
}

// queryRows executes a row-returning statement and materializes all rows.
// The whole read runs inside one retry attempt so a retried attempt never
// observes a half-consumed cursor.
func (w *Worker) queryRows(ctx context.Context, query string, args []any) ([][]any, error) {
	var out [][]any
	err := w.withRetry(ctx, func() error {
		rows, queryErr := w.conn.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close() //nolint:errcheck // Read errors surface via rows.Err()

		cols, colsErr := rows.Columns()
		if colsErr != nil {
			return colsErr
		}

		out = nil
		for rows.Next() {
			values := make([]any, len(cols))
			scanTargets := make([]any, len(cols))
			for i := range values {
				scanTargets[i] = &values[i]
			}
			if scanErr := rows.Scan(scanTargets...); scanErr != nil {
				return scanErr
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}
			out = append(out, values)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// publish stores the Response and wakes the awaiting caller, if any.
func (w *Worker) publish(token Token, resp *Response) {
	w.mu.Lock()
	p := w.pending[token]
	w.mu.Unlock()

	if p == nil {
		// Token was consumed by a racing Await error path; nothing to do.
		return
	}
	p.resp = resp
	close(p.done)
}

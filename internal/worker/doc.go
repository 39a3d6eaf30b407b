// Package worker provides serialized, thread-safe access to a single
// SQLite connection.
//
// SQLite offers no safe concurrent use of one connection from multiple
// threads. This package restores safety by funnelling every statement
// through one dedicated dispatch goroutine: producers enqueue requests
// from any goroutine and receive correlated responses, while the
// connection handle itself is owned exclusively by the loop.
//
// # Guarantees
//
//   - Total ordering: statements execute in strict enqueue order,
//     regardless of which goroutine submitted them. A read submitted
//     after a write always observes that write.
//   - Isolation: at most one explicit transaction is open at a time;
//     concurrent BEGINs resolve to exactly one winner.
//   - Delivery: every request produces exactly one Response, delivered
//     to at most one Await caller. Failures are isolated per request and
//     never stop the loop.
//   - Resilience: transient lock contention is retried with exponential
//     backoff; a lost connection is reopened (replaying configured init
//     statements) before the statement is retried.
//
// # Usage
//
//	conn, _ := database.Open(database.Config{Path: "app.db", WALMode: true, BusyTimeout: 5})
//	w := worker.New(conn, worker.Options{})
//	defer w.Close()
//
//	token, _ := w.Submit("INSERT INTO t (v) VALUES (?)", 1)
//	resp, _ := w.Await(ctx, token)
//
//	err := w.WithTransaction(ctx, func() error {
//	    _, err := w.Exec(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", 10, 1)
//	    return err
//	})
//
// # Observers
//
// Hooks registered via RegisterHook fire synchronously on the dispatch
// goroutine after each successful statement, AnyQuery hooks first, then
// the statement's kind-specific hooks, in registration order. Panics in
// hooks are contained and logged.
package worker

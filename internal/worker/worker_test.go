package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sqlworker/internal/infrastructure/database"
)

// TestReadAfterWrite verifies a SELECT submitted after an INSERT always
// observes the inserted row, because both flow through the single loop.
func TestReadAfterWrite(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	mustExec(t, w, "CREATE TABLE t (v INTEGER)")

	insertToken, err := w.Submit("INSERT INTO t (v) VALUES (?)", 1)
	if err != nil {
		t.Fatalf("Submit(INSERT) error = %v", err)
	}
	selectToken, err := w.Submit("SELECT v FROM t")
	if err != nil {
		t.Fatalf("Submit(SELECT) error = %v", err)
	}

	if _, err := w.Await(ctx, insertToken); err != nil {
		t.Fatalf("Await(insert) error = %v", err)
	}
	resp, err := w.Await(ctx, selectToken)
	if err != nil {
		t.Fatalf("Await(select) error = %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("select Response.Err = %v", resp.Err)
	}

	if len(resp.Rows) != 1 || len(resp.Rows[0]) != 1 {
		t.Fatalf("Rows = %v, want [[1]]", resp.Rows)
	}
	if got := resp.Rows[0][0]; got != int64(1) {
		t.Errorf("Rows[0][0] = %v (%T), want int64(1)", got, got)
	}
}

// TestTotalOrdering verifies each producer's submissions execute in its
// own submission order even under heavy concurrency.
func TestTotalOrdering(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	mustExec(t, w, "CREATE TABLE ordered (producer INTEGER, step INTEGER)")

	const producers = 8
	const steps = 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for s := 0; s < steps; s++ {
				if _, err := w.Submit("INSERT INTO ordered (producer, step) VALUES (?, ?)", producer, s); err != nil {
					t.Errorf("Submit() error = %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		resp, err := w.Exec(ctx, "SELECT step FROM ordered WHERE producer = ? ORDER BY rowid", p)
		if err != nil {
			t.Fatalf("Exec(SELECT) error = %v", err)
		}
		if len(resp.Rows) != steps {
			t.Fatalf("producer %d: got %d rows, want %d", p, len(resp.Rows), steps)
		}
		for s, row := range resp.Rows {
			if row[0] != int64(s) {
				t.Fatalf("producer %d: row %d = %v, want %d (out of order execution)", p, s, row[0], s)
			}
		}
	}
}

// TestAwait_ConsumeOnce verifies exactly-once Response delivery.
func TestAwait_ConsumeOnce(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	token, err := w.Submit("SELECT 1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := w.Await(ctx, token); err != nil {
		t.Fatalf("first Await() error = %v", err)
	}
	if _, err := w.Await(ctx, token); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("second Await() error = %v, want ErrUnknownToken", err)
	}
}

// TestAwait_UnknownToken verifies Await rejects tokens it never issued.
func TestAwait_UnknownToken(t *testing.T) {
	w := openTestWorker(t)

	_, err := w.Await(context.Background(), Token("req-nonexistent"))
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Await() error = %v, want ErrUnknownToken", err)
	}
}

// TestAwait_AbandonedWaitKeepsResponse verifies a cancelled Await leaves
// the Response stored for a later retrieval.
func TestAwait_AbandonedWaitKeepsResponse(t *testing.T) {
	w := openTestWorker(t)

	token, err := w.Submit("SELECT 42")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Await(cancelled, token); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await(cancelled ctx) error = %v, want context.Canceled", err)
	}

	resp, err := w.Await(context.Background(), token)
	if err != nil {
		t.Fatalf("second Await() error = %v", err)
	}
	if resp.Err != nil || len(resp.Rows) != 1 {
		t.Errorf("Response = %+v, want one row", resp)
	}
}

// TestStatementError_IsIsolated verifies a failing request delivers its
// error to its caller only, and the loop keeps processing.
func TestStatementError_IsIsolated(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	badToken, err := w.Submit("NOT VALID SQL AT ALL")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	goodToken, err := w.Submit("SELECT 1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	badResp, err := w.Await(ctx, badToken)
	if err == nil && badResp.Err == nil {
		t.Error("expected statement error for invalid SQL")
	}

	goodResp, err := w.Await(ctx, goodToken)
	if err != nil {
		t.Fatalf("Await(good) error = %v", err)
	}
	if goodResp.Err != nil {
		t.Errorf("good Response.Err = %v, want nil (loop must keep processing)", goodResp.Err)
	}
}

// TestClose verifies drain-then-close semantics and terminal rejection.
func TestClose(t *testing.T) {
	tmpDir := t.TempDir()
	conn, err := database.Open(database.Config{
		Path:        filepath.Join(tmpDir, "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	w := New(conn, Options{})
	ctx := context.Background()

	mustExec(t, w, "CREATE TABLE drain_test (v INTEGER)")

	// Queue up work, then close; everything submitted must still execute.
	var tokens []Token
	for i := 0; i < 20; i++ {
		token, err := w.Submit("INSERT INTO drain_test (v) VALUES (?)", i)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		tokens = append(tokens, token)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, token := range tokens {
		resp, err := w.Await(ctx, token)
		if err != nil {
			t.Fatalf("Await() after close error = %v", err)
		}
		if resp.Err != nil {
			t.Errorf("drained request failed: %v", resp.Err)
		}
	}

	// Terminal state: all submissions fail immediately.
	if _, err := w.Submit("SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
	if _, err := w.SubmitControl(ControlBegin); !errors.Is(err, ErrClosed) {
		t.Errorf("SubmitControl() after Close error = %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// TestExec verifies the submit-and-await convenience.
func TestExec(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	mustExec(t, w, "CREATE TABLE exec_test (id INTEGER PRIMARY KEY, v TEXT)")

	resp, err := w.Exec(ctx, "INSERT INTO exec_test (v) VALUES (?)", "hello")
	if err != nil {
		t.Fatalf("Exec(INSERT) error = %v", err)
	}
	if resp.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", resp.RowsAffected)
	}
	if resp.LastInsertID != 1 {
		t.Errorf("LastInsertID = %d, want 1", resp.LastInsertID)
	}

	if _, err := w.Exec(ctx, "INSERT INTO exec_test (nonexistent) VALUES (1)"); err == nil {
		t.Error("Exec() expected statement error, got nil")
	}
}

// TestFireAndForget verifies tokens may simply never be awaited.
func TestFireAndForget(t *testing.T) {
	w := openTestWorker(t)
	ctx := context.Background()

	mustExec(t, w, "CREATE TABLE faf (v INTEGER)")

	for i := 0; i < 10; i++ {
		if _, err := w.Submit("INSERT INTO faf (v) VALUES (?)", i); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	resp, err := w.Exec(ctx, "SELECT COUNT(*) FROM faf")
	if err != nil {
		t.Fatalf("Exec(SELECT) error = %v", err)
	}
	if resp.Rows[0][0] != int64(10) {
		t.Errorf("COUNT(*) = %v, want 10", resp.Rows[0][0])
	}
}

// TestQueueLen verifies the queue depth accessor settles to zero.
func TestQueueLen(t *testing.T) {
	w := openTestWorker(t)

	for i := 0; i < 5; i++ {
		if _, err := w.Submit("SELECT 1"); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.QueueLen() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("QueueLen() = %d, want 0 after drain", w.QueueLen())
		}
		time.Sleep(time.Millisecond)
	}
}

// TestClassify verifies statement kind classification.
func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  Kind
	}{
		{"SELECT * FROM t", KindSelect},
		{"  select 1", KindSelect},
		{"SELECT\n1", KindSelect},
		{"INSERT INTO t VALUES (1)", KindInsert},
		{"insert into t values (1)", KindInsert},
		{"UPDATE t SET v = 1", KindUpdate},
		{"DELETE FROM t", KindDelete},
		{"CREATE TABLE t (v INTEGER)", KindOther},
		{"PRAGMA user_version", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := classify(tt.query); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

// openTestWorker creates a worker over a temporary database.
func openTestWorker(t *testing.T) *Worker {
	t.Helper()

	tmpDir := t.TempDir()
	conn, err := database.Open(database.Config{
		Path:        filepath.Join(tmpDir, "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}

	w := New(conn, Options{})
	t.Cleanup(func() {
		w.Close() //nolint:errcheck // Test cleanup
	})
	return w
}

// mustExec runs a statement and fails the test on any error.
func mustExec(t *testing.T, w *Worker, query string, args ...any) {
	t.Helper()
	if _, err := w.Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("Exec(%s) error = %v", query, err)
	}
}

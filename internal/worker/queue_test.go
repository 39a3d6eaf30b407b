package worker

import (
	"sync"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	for i := 0; i < 5; i++ {
		if !q.Enqueue(&request{seq: uint64(i)}) {
			t.Fatalf("Enqueue(%d) = false, want true", i)
		}
	}
	if got := q.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}

	for i := 0; i < 5; i++ {
		r, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() ok = false at %d", i)
		}
		if r.seq != uint64(i) {
			t.Errorf("Dequeue() seq = %d, want %d", r.seq, i)
		}
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := newRequestQueue()

	for i := 0; i < 3; i++ {
		q.Enqueue(&request{seq: uint64(i)})
	}
	q.Close()

	// Everything enqueued before Close is still handed out.
	for i := 0; i < 3; i++ {
		r, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() ok = false at %d, want drained request", i)
		}
		if r.seq != uint64(i) {
			t.Errorf("Dequeue() seq = %d, want %d", r.seq, i)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() ok = true on closed empty queue, want false")
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := newRequestQueue()
	q.Close()

	if q.Enqueue(&request{}) {
		t.Error("Enqueue() after Close = true, want false")
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := newRequestQueue()
	q.Close()
	q.Close()
}

func TestQueue_BlockingDequeue(t *testing.T) {
	q := newRequestQueue()

	got := make(chan *request, 1)
	go func() {
		r, ok := q.Dequeue()
		if !ok {
			close(got)
			return
		}
		got <- r
	}()

	q.Enqueue(&request{seq: 7})

	r := <-got
	if r == nil || r.seq != 7 {
		t.Fatalf("Dequeue() = %v, want seq 7", r)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := newRequestQueue()

	const producers = 8
	const each = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(&request{})
			}
		}()
	}
	wg.Wait()
	q.Close()

	count := 0
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
		count++
	}
	if count != producers*each {
		t.Errorf("dequeued %d requests, want %d", count, producers*each)
	}
}

package worker

import "sync"

// requestQueue is a thread-safe FIFO queue for requests.
//
// The queue is unbounded so that Submit never blocks producers on
// execution progress; backpressure would turn concurrent producers into a
// starvation deadlock risk against the single dispatch goroutine.
//
// The queue uses a buffered signal channel for wakeups so the dispatch
// loop can block without spinning while the queue is empty.
type requestQueue struct {
	mu       sync.Mutex
	requests []*request
	closed   bool
	signal   chan struct{} // Signals request availability (buffered, size 1)
}

// newRequestQueue creates an empty request queue.
func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]*request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	// Non-blocking send - the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the front request.
// Blocks until a request is available or the queue is closed AND drained.
// Returns (nil, false) only once the queue is closed and empty, so every
// request enqueued before Close is still handed out.
func (q *requestQueue) Dequeue() (*request, bool) {
	for {
		q.mu.Lock()
		if len(q.requests) > 0 {
			r := q.requests[0]
			// Nil the slot so the backing array doesn't retain the request
			q.requests[0] = nil
			if len(q.requests) == 1 {
				q.requests = q.requests[:0]
			} else {
				q.requests = q.requests[1:]
			}
			q.mu.Unlock()
			return r, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close marks the queue closed and wakes any blocked waiter.
// Requests already enqueued remain dequeueable; new Enqueues fail.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

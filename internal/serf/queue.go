package serf

import "sync"

// requestQueue is an unbounded FIFO between the reactor, which enqueues,
// and the worker, which dequeues.
type requestQueue struct {
	mu     sync.Mutex
	reqs   []*request
	closed bool
	signal chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{signal: make(chan struct{}, 1)}
}

// enqueue returns false once the queue is closed.
func (q *requestQueue) enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.reqs = append(q.reqs, r)
	q.notify()
	return true
}

// dequeue blocks for the next request. Returns false once the queue is
// closed and empty.
func (q *requestQueue) dequeue() (*request, bool) {
	for {
		q.mu.Lock()
		if len(q.reqs) > 0 {
			r := q.reqs[0]
			q.reqs[0] = nil
			q.reqs = q.reqs[1:]
			q.mu.Unlock()
			return r, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}
		<-q.signal
	}
}

// close stops further enqueues. Queued requests still drain.
func (q *requestQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.notify()
	}
}

// notify must be called with mu held.
func (q *requestQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

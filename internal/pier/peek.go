package pier

import (
	"github.com/roach88/vere/internal/ir"
)

// PeekRequest is a pending namespace query and its completion.
type PeekRequest struct {
	Query ir.Peek
	Done  func(v ir.Value, err error)
}

// PeekQueue is the FIFO of peeks waiting for room in a work batch.
//
// Enqueue wakes the reactor's idle hook, so a peek submitted while no
// other I/O is pending is sent on the next iteration instead of waiting
// for an unrelated event.
type PeekQueue struct {
	q    fifo[*PeekRequest]
	wake func()
}

// NewPeekQueue creates an empty queue. wake may be nil.
func NewPeekQueue(wake func()) *PeekQueue {
	return &PeekQueue{wake: wake}
}

// Enqueue appends req to the tail.
func (pq *PeekQueue) Enqueue(req *PeekRequest) {
	pq.q.push(req)
	if pq.wake != nil {
		pq.wake()
	}
}

// Dequeue pops the head, or returns false if the queue is empty.
func (pq *PeekQueue) Dequeue() (*PeekRequest, bool) {
	return pq.q.pop()
}

// Len returns the number of pending peeks.
func (pq *PeekQueue) Len() int {
	return pq.q.len()
}

// Fail completes every pending peek with err and empties the queue.
func (pq *PeekQueue) Fail(err error) {
	for {
		req, ok := pq.q.pop()
		if !ok {
			return
		}
		if req.Done != nil {
			req.Done(nil, err)
		}
	}
}

package pier

import (
	"fmt"

	"github.com/roach88/vere/internal/ir"
)

// GiftQueue holds computed effect batches until their events are durable.
//
// INVARIANTS:
//   - Gifts are planned in strictly consecutive event order: each gift's
//     event is one more than the tail's, or than the released watermark
//     when the queue is empty.
//   - Release is head first and only when the log's durable position has
//     reached the head's event. A blocked head blocks everything behind it.
type GiftQueue struct {
	q        fifo[ir.Gift]
	released uint64
}

// NewGiftQueue creates an empty queue whose released watermark is released.
func NewGiftQueue(released uint64) *GiftQueue {
	return &GiftQueue{released: released}
}

// Plan appends g, enforcing consecutive event order.
func (gq *GiftQueue) Plan(g ir.Gift) error {
	last := gq.released
	if tail, ok := gq.q.peekTail(); ok {
		last = tail.Eve
	}
	if g.Eve != last+1 {
		return fmt.Errorf("gift %d planned after %d", g.Eve, last)
	}
	gq.q.push(g)
	return nil
}

// Next pops the head gift if durable has reached it.
func (gq *GiftQueue) Next(durable uint64) (ir.Gift, bool) {
	head, ok := gq.q.peekHead()
	if !ok || head.Eve > durable {
		return ir.Gift{}, false
	}
	gq.q.pop()
	gq.released = head.Eve
	return head, true
}

// Release hands every releasable gift to deliver, in order, and returns
// how many were released.
func (gq *GiftQueue) Release(durable uint64, deliver func(ir.Gift)) int {
	n := 0
	for {
		g, ok := gq.Next(durable)
		if !ok {
			return n
		}
		deliver(g)
		n++
	}
}

// Released is the last event whose effects were delivered.
func (gq *GiftQueue) Released() uint64 {
	return gq.released
}

// Len returns the number of gifts waiting.
func (gq *GiftQueue) Len() int {
	return gq.q.len()
}

// Bounds returns the first and last waiting events, or zeros if empty.
func (gq *GiftQueue) Bounds() (first, last uint64) {
	head, ok := gq.q.peekHead()
	if !ok {
		return 0, 0
	}
	tail, _ := gq.q.peekTail()
	return head.Eve, tail.Eve
}

// Drop discards every waiting gift without delivering it.
func (gq *GiftQueue) Drop() {
	gq.q.clear()
}

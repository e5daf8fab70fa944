package pier

// fifo is an owned first-in first-out queue.
//
// Not safe for concurrent use: every fifo in this package lives on the
// reactor goroutine. Popped slots are zeroed so the backing array does not
// retain facts, gifts or callbacks after they leave the queue.
type fifo[T any] struct {
	items []T
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

func (q *fifo[T]) peekHead() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

func (q *fifo[T]) peekTail() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[len(q.items)-1], true
}

// take detaches up to n items from the head.
func (q *fifo[T]) take(n int) []T {
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]T, n)
	copy(out, q.items[:n])

	var zero T
	for i := 0; i < n; i++ {
		q.items[i] = zero
	}
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return out
}

func (q *fifo[T]) len() int {
	return len(q.items)
}

func (q *fifo[T]) clear() {
	q.items = nil
}

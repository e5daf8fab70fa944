package pier

import "github.com/google/uuid"

// NextEvent is the barrier target meaning "as soon as the pipeline is idle".
const NextEvent uint64 = 0

// Barrier is a deferred callback gated on durability and an idle engine.
type Barrier struct {
	ID     string
	Name   string
	Target uint64
	Fire   func(eve uint64)
}

// BarrierQueue orders barriers by target, highest first.
//
// Insertion is stable: a barrier goes after every existing barrier whose
// target is greater than or equal to its own, so barriers sharing a target
// fire in the order they were planned.
//
// Draining only ever looks at the head. A barrier never fires early
// because a later one is already satisfied.
type BarrierQueue struct {
	list []*Barrier
}

// Plan inserts a barrier and returns it.
func (bq *BarrierQueue) Plan(name string, target uint64, fire func(eve uint64)) *Barrier {
	b := &Barrier{ID: uuid.NewString(), Name: name, Target: target, Fire: fire}

	i := 0
	for i < len(bq.list) && target <= bq.list[i].Target {
		i++
	}
	bq.list = append(bq.list, nil)
	copy(bq.list[i+1:], bq.list[i:])
	bq.list[i] = b
	return b
}

// Head returns the first barrier without removing it.
func (bq *BarrierQueue) Head() (*Barrier, bool) {
	if len(bq.list) == 0 {
		return nil, false
	}
	return bq.list[0], true
}

// Ready reports whether the head may fire: the engine has caught up with
// the durable log, nothing is in flight, and the head's target is reached.
func (bq *BarrierQueue) Ready(engineEve, durable uint64, depth int) bool {
	head, ok := bq.Head()
	return ok && engineEve == durable && depth == 0 && head.Target <= engineEve
}

// Pop removes the head.
func (bq *BarrierQueue) Pop() (*Barrier, bool) {
	head, ok := bq.Head()
	if !ok {
		return nil, false
	}
	bq.list[0] = nil
	bq.list = bq.list[1:]
	return head, true
}

// Len returns the number of pending barriers.
func (bq *BarrierQueue) Len() int {
	return len(bq.list)
}

// Drop discards every barrier without firing it.
func (bq *BarrierQueue) Drop() {
	bq.list = nil
}

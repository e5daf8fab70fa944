package pier

import (
	"log/slog"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/observability"
)

// workPhase is steady state: new events in, durable effects out.
//
// Each advance releases every gift whose event is durable, fires every
// barrier whose conditions hold, then fills the engine's pipeline up to
// the budget. The phase keeps releasing and draining after Exit moves the
// pier to DONE, but sends nothing more.
type workPhase struct {
	p        *Pier
	gifts    *GiftQueue
	barriers BarrierQueue
	closed   bool
}

func newWorkPhase(p *Pier, released uint64) *workPhase {
	slog.Info("entering work", "eve", p.eng.Eve(), "released", released)
	return &workPhase{
		p:     p,
		gifts: NewGiftQueue(released),
	}
}

func (w *workPhase) advance() {
	if w.closed {
		return
	}
	p := w.p

	p.checkLive()
	w.gifts.Release(p.disk.Durable(), w.deliver)
	w.drain()

	if p.state == StateWork && !w.closed {
		w.send()
	}
	observability.SetPositions(p.disk.Durable(), p.eng.Eve(), p.eng.Depth())
}

func (w *workPhase) dispose() {
	w.close()
}

func (w *workPhase) deliver(g ir.Gift) {
	slog.Debug("gift released", "eve", g.Eve, "effects", len(g.Effects))
	observability.RecordGiftReleased(len(g.Effects))
	w.p.drv.Deliver(g)
}

func (w *workPhase) drain() {
	p := w.p
	for !w.closed && w.barriers.Ready(p.eng.Eve(), p.disk.Durable(), p.eng.Depth()) {
		b, _ := w.barriers.Pop()
		slog.Debug("barrier fired", "barrier", b.Name, "id", b.ID, "target", b.Target, "eve", p.eng.Eve())
		observability.RecordBarrierFired(b.Name)
		b.Fire(p.eng.Eve())
	}
}

// budget is how many requests may be sent this tick.
func (w *workPhase) budget() int {
	p := w.p
	depth := p.eng.Depth()
	n := p.opts.WorkBatch - depth

	if head, ok := w.barriers.Head(); ok {
		sent := p.eng.Eve() + uint64(depth)
		if head.Target <= sent {
			return 0
		}
		if gap := head.Target - sent; gap < uint64(max(n, 0)) {
			n = int(gap)
		}
	}
	return max(n, 0)
}

// send submits events and peeks. Every event is followed by one peek if
// any are queued; budget left once events run out goes to peeks.
func (w *workPhase) send() {
	p := w.p
	n := w.budget()

	for n > 0 {
		ev, ok := p.drv.Next()
		if !ok {
			break
		}
		w.work(ev)
		n--

		if n > 0 {
			if req, ok := p.peeks.Dequeue(); ok {
				w.peek(req)
				n--
			}
		}
	}

	for ; n > 0; n-- {
		req, ok := p.peeks.Dequeue()
		if !ok {
			break
		}
		w.peek(req)
	}
}

func (w *workPhase) work(ev ir.Event) {
	p := w.p
	ev = ev.Stamped(p.clock.Next())
	slog.Debug("work send", "wire", ev.Wire.String(), "tag", ev.Card.Tag)
	observability.RecordEventSubmitted()
	p.eng.Work(ev, func(res WorkResult, err error) {
		w.onWorkDone(ev, res, err)
	})
}

// plan queues a barrier and wakes the reactor so an idle pipeline drains it.
func (w *workPhase) plan(name string, target uint64, fire func(eve uint64)) *Barrier {
	b := w.barriers.Plan(name, target, fire)
	slog.Debug("barrier planned", "barrier", name, "id", b.ID, "target", target)
	w.p.rx.Wake()
	return b
}

func (w *workPhase) peek(req *PeekRequest) {
	q := req.Query
	slog.Debug("peek send", "peek", q.ID, "path", q.Path.String())
	observability.RecordPeekSubmitted()
	w.p.eng.Peek(q, func(v ir.Value, err error) {
		if w.p.gone() {
			return
		}
		if err != nil {
			slog.Warn("peek failed", "peek", q.ID, "path", q.Path.String(), "error", err)
		} else {
			slog.Debug("peek done", "peek", q.ID)
		}
		if req.Done != nil {
			req.Done(v, err)
		}
	})
}

func (w *workPhase) onWorkDone(ev ir.Event, res WorkResult, err error) {
	p := w.p
	if p.gone() || w.closed {
		return
	}

	if err != nil {
		slog.Warn("event rejected", "wire", ev.Wire.String(), "tag", ev.Card.Tag, "error", err)
		observability.RecordEventRejected()
		p.drv.Bail(ev, err)
		return
	}

	p.disk.Write(ir.Fact{Eve: res.Eve, Mug: res.Mug, Event: res.Event}, w.onWriteDone)
	if err := w.gifts.Plan(ir.Gift{Eve: res.Eve, Effects: res.Effects}); err != nil {
		p.bail(NewInvariantError("%v", err))
		return
	}
	p.drv.Done(ev)
}

func (w *workPhase) onWriteDone(eve uint64, err error) {
	p := w.p
	if p.gone() {
		return
	}
	if err != nil {
		p.bail(NewLogError(ErrCodeLogWrite, eve, err))
	}
}

// close drops everything still queued and stops the drivers.
func (w *workPhase) close() {
	if w.closed {
		return
	}
	w.closed = true
	if n := w.gifts.Len(); n > 0 {
		first, last := w.gifts.Bounds()
		slog.Warn("dropping unreleased gifts", "count", n, "first", first, "last", last)
	}
	w.gifts.Drop()
	w.barriers.Drop()
	w.p.stopDrivers()
}

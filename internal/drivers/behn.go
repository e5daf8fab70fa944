package drivers

import (
	"time"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// Behn is the timer driver. A doze effect arms a timer; when it fires a
// wake event is queued on the reactor.
type Behn struct {
	poster  pier.Poster
	queue   []ir.Event
	timer   *time.Timer
	started bool
	gen     int
}

// NewBehn creates a timer driver posting wakes through poster.
func NewBehn(poster pier.Poster) *Behn {
	return &Behn{poster: poster}
}

func (b *Behn) Name() string { return "behn" }

func (b *Behn) Start()     { b.started = true }
func (b *Behn) Live() bool { return b.started }

func (b *Behn) Next() (ir.Event, bool) {
	if len(b.queue) == 0 {
		return ir.Event{}, false
	}
	ev := b.queue[0]
	b.queue = b.queue[1:]
	return ev, true
}

// Claim arms the timer for a doze effect. A later doze replaces an
// earlier one.
func (b *Behn) Claim(fx ir.Effect) bool {
	if fx.Wire.Driver() != b.Name() || fx.Card.Tag != "doze" {
		return false
	}
	if !b.started {
		return true
	}

	data, _ := fx.Card.Data.(ir.Map)
	ms, _ := data.Number("ms")

	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		b.poster.Post(func() { b.fire(gen) })
	})
	return true
}

func (b *Behn) fire(gen int) {
	if !b.started || gen != b.gen {
		return
	}
	b.timer = nil
	b.queue = append(b.queue, ir.Event{Wire: ir.Wire{b.Name()}, Card: ir.Card{Tag: "wake"}})
}

func (b *Behn) Done(ir.Event)        {}
func (b *Behn) Bail(ir.Event, error) {}

func (b *Behn) Teardown() {
	b.started = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

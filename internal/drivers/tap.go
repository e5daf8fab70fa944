package drivers

import "github.com/roach88/vere/internal/ir"

// Tap observes every effect offered to the chain without claiming any.
// Place it first.
type Tap struct {
	fn func(ir.Effect)
}

// NewTap creates a Tap calling fn for each effect.
func NewTap(fn func(ir.Effect)) *Tap {
	return &Tap{fn: fn}
}

func (t *Tap) Name() string           { return "tap" }
func (t *Tap) Start()                 {}
func (t *Tap) Live() bool             { return true }
func (t *Tap) Next() (ir.Event, bool) { return ir.Event{}, false }
func (t *Tap) Done(ir.Event)          {}
func (t *Tap) Bail(ir.Event, error)   {}
func (t *Tap) Teardown()              {}

func (t *Tap) Claim(fx ir.Effect) bool {
	t.fn(fx)
	return false
}

package drivers

import (
	"log/slog"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// Driver is one source of events and sink of effects.
type Driver interface {
	// Name is the wire segment that routes events and effects to the driver.
	Name() string

	Start()
	Live() bool

	// Next pops the driver's next pending event.
	Next() (ir.Event, bool)

	// Claim takes fx if the driver handles it.
	Claim(fx ir.Effect) bool

	Done(ev ir.Event)
	Bail(ev ir.Event, err error)
	Teardown()
}

var (
	_ pier.DriverChain = (*Chain)(nil)
	_ Driver           = (*Chain)(nil)
)

// Chain is an ordered list of drivers. A Chain is itself a Driver, so
// chains nest.
type Chain struct {
	name    string
	drivers []Driver
	next    int // driver asked first by the next call to Next
}

// NewChain creates a chain of drivers in priority order.
func NewChain(name string, drivers ...Driver) *Chain {
	return &Chain{name: name, drivers: drivers}
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) Start() {
	for _, d := range c.drivers {
		slog.Debug("driver starting", "driver", d.Name())
		d.Start()
	}
}

// Live reports whether every driver has finished starting.
func (c *Chain) Live() bool {
	for _, d := range c.drivers {
		if !d.Live() {
			return false
		}
	}
	return true
}

// Next returns a pending event, depth first. The search starts after the
// driver that produced the previous event, so a busy driver cannot keep
// the ones behind it waiting.
func (c *Chain) Next() (ir.Event, bool) {
	n := len(c.drivers)
	for i := 0; i < n; i++ {
		j := (c.next + i) % n
		if ev, ok := c.drivers[j].Next(); ok {
			c.next = (j + 1) % n
			return ev, true
		}
	}
	return ir.Event{}, false
}

// Claim offers fx to each driver in order.
func (c *Chain) Claim(fx ir.Effect) bool {
	for _, d := range c.drivers {
		if d.Claim(fx) {
			return true
		}
	}
	return false
}

// Deliver offers every effect of g to the chain.
func (c *Chain) Deliver(g ir.Gift) {
	for _, fx := range g.Effects {
		if !c.Claim(fx) {
			slog.Debug("effect dropped", "eve", g.Eve, "wire", fx.Wire.String(), "tag", fx.Card.Tag)
		}
	}
}

func (c *Chain) Done(ev ir.Event) {
	if d := c.owner(ev.Wire.Driver()); d != nil {
		d.Done(ev)
	}
}

func (c *Chain) Bail(ev ir.Event, err error) {
	d := c.owner(ev.Wire.Driver())
	if d == nil {
		slog.Warn("event rejected", "wire", ev.Wire.String(), "tag", ev.Card.Tag, "error", err)
		return
	}
	d.Bail(ev, err)
}

func (c *Chain) Teardown() {
	for i := len(c.drivers) - 1; i >= 0; i-- {
		c.drivers[i].Teardown()
	}
}

// owner finds the driver named name, searching nested chains.
func (c *Chain) owner(name string) Driver {
	for _, d := range c.drivers {
		if d.Name() == name {
			return d
		}
		if sub, ok := d.(*Chain); ok {
			if found := sub.owner(name); found != nil {
				return found
			}
		}
	}
	return nil
}

package testutil

import (
	"github.com/roach88/vere/internal/ir"
)

// FakeChain is a pier.DriverChain that records everything the pier tells it.
type FakeChain struct {
	// Lazy keeps Live false until SetLive is called.
	Lazy bool

	queue     []ir.Event
	delivered []ir.Gift
	completed []ir.Event
	bailed    []ir.Event
	errs      []error
	started   int
	torndown  int
	live      bool
}

// NewFakeChain creates a chain with events queued for Next.
func NewFakeChain(events ...ir.Event) *FakeChain {
	return &FakeChain{queue: append([]ir.Event(nil), events...)}
}

// Inject queues more events.
func (c *FakeChain) Inject(events ...ir.Event) {
	c.queue = append(c.queue, events...)
}

func (c *FakeChain) Start() {
	c.started++
	if !c.Lazy {
		c.live = true
	}
}

// SetLive marks the chain live.
func (c *FakeChain) SetLive() { c.live = true }

func (c *FakeChain) Live() bool { return c.live }

func (c *FakeChain) Next() (ir.Event, bool) {
	if c.started == 0 || len(c.queue) == 0 {
		return ir.Event{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

func (c *FakeChain) Deliver(g ir.Gift) {
	c.delivered = append(c.delivered, g)
}

func (c *FakeChain) Done(ev ir.Event) {
	c.completed = append(c.completed, ev)
}

func (c *FakeChain) Bail(ev ir.Event, err error) {
	c.bailed = append(c.bailed, ev)
	c.errs = append(c.errs, err)
}

func (c *FakeChain) Teardown() {
	c.torndown++
	c.live = false
}

// Queued returns how many events wait for Next.
func (c *FakeChain) Queued() int { return len(c.queue) }

// Delivered returns every released gift in release order.
func (c *FakeChain) Delivered() []ir.Gift { return append([]ir.Gift(nil), c.delivered...) }

// DeliveredEves returns the event numbers of every released gift.
func (c *FakeChain) DeliveredEves() []uint64 {
	out := make([]uint64, len(c.delivered))
	for i, g := range c.delivered {
		out[i] = g.Eve
	}
	return out
}

// Completed returns events reported done.
func (c *FakeChain) Completed() []ir.Event { return append([]ir.Event(nil), c.completed...) }

// Bailed returns events reported rejected.
func (c *FakeChain) Bailed() []ir.Event { return append([]ir.Event(nil), c.bailed...) }

func (c *FakeChain) Started() int  { return c.started }
func (c *FakeChain) TornDown() int { return c.torndown }

// Event builds a test event on wire /name/... with tag and no payload.
func Event(tag string, wire ...string) ir.Event {
	return ir.Event{Wire: ir.Wire(wire), Card: ir.Card{Tag: tag}}
}

// Facts builds n event facts numbered from first, each with a zero mug.
func Facts(first uint64, n int) []ir.Fact {
	out := make([]ir.Fact, n)
	for i := range out {
		eve := first + uint64(i)
		out[i] = ir.Fact{Eve: eve, Event: Event("put", "test", "fact")}
	}
	return out
}

// Lifecycle builds n lifecycle facts numbered from 1.
func Lifecycle(n int) []ir.Fact {
	out := make([]ir.Fact, n)
	for i := range out {
		out[i] = ir.Fact{Eve: uint64(i + 1), Formula: ir.Map{"formula": ir.Int(i + 1)}}
	}
	return out
}

package pier

import "time"

// Quantum is the time step between events stamped in one batch (1/2^16 s).
const Quantum = time.Second >> 16

// WallClock stamps events with strictly increasing wall-clock times.
//
// Refresh is called once per reactor iteration (the pre hook); Next hands
// out the current reading and advances it by Quantum, so events submitted
// in one batch are ordered even though the OS clock did not move.
// A refresh never moves the clock backwards.
type WallClock struct {
	now func() time.Time
	cur time.Time
}

// NewWallClock creates a clock reading from now. A nil now uses time.Now.
func NewWallClock(now func() time.Time) *WallClock {
	if now == nil {
		now = time.Now
	}
	c := &WallClock{now: now}
	c.cur = now()
	return c
}

// Refresh moves the clock to the OS time if that is later.
func (c *WallClock) Refresh() {
	if t := c.now(); t.After(c.cur) {
		c.cur = t
	}
}

// Next returns the current stamp and advances by Quantum.
func (c *WallClock) Next() time.Time {
	t := c.cur
	c.cur = c.cur.Add(Quantum)
	return t
}

// Current returns the next stamp without consuming it.
func (c *WallClock) Current() time.Time {
	return c.cur
}

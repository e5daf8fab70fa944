// Package drivers implements the pier's I/O driver chain.
//
// A Chain holds drivers in order. Next pops the first pending event,
// descending into nested chains depth first. Released effects are offered
// to each driver in turn until one claims them. Completion notices are
// routed by the first segment of the event's wire, which names the
// driver that produced it.
//
// Every method runs on the pier's reactor goroutine. Drivers that produce
// events from other goroutines (timers, terminal input) hand them over
// through a pier.Poster.
package drivers

// Package disk adapts a synchronous fact Backend into the asynchronous
// pier.Log the reactor expects.
//
// A single writer goroutine commits queued facts in batches. Each fact's
// completion is posted to the reactor in event order, and Durable
// advances inside that posted function, so the reactor never observes a
// durable position its callbacks have not yet seen. Reads run on their
// own goroutines and post their results the same way.
package disk

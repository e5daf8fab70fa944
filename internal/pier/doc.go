// Package pier implements the control plane of one deterministic VM instance.
//
// A Pier sequences its ship through boot, replay, version negotiation and
// steady-state work, and back down through graceful or error shutdown.
//
// ARCHITECTURE:
//
// Single-threaded reactor:
// Every queue in this package is touched only from the Reactor goroutine.
// Collaborators (Log, Engine, DriverChain) do their work elsewhere and post
// completions back with Poster.Post, so no queue needs a lock.
//
// Each reactor iteration runs three hooks:
//   - pre:  refresh the wall clock used to stamp events
//   - post: advance the active phase (release gifts, drain barriers, send work)
//   - idle: re-run the advance when something was queued with no I/O pending
//
// Phases:
// Exactly one phase object is active at a time (boot, play, wyrd, work).
// Completion callbacks are closures bound to the phase that issued the
// request, so changing phase never rewires a shared callback table.
//
// Durability:
// An effect is never delivered before the event that caused it is durable.
// GiftQueue releases strictly in event order and blocks at its head.
//
// ERROR HANDLING:
// Collaborator failures are never retried. Each one is classified as logged,
// graceful-fatal (drain to DONE, exit code 1) or immediate-fatal (bail: tear
// everything down synchronously, exit code 1). See errors.go.
package pier

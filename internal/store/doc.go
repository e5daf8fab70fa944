// Package store provides the SQLite backend for a pier's event log.
//
// The store is an append-only table of facts keyed by event number plus a
// small key/value table holding the pier's identity.
//
// # Invariants
//
//   - Facts are appended in strictly consecutive event order starting at 1.
//     AppendFacts rejects a batch that does not continue the log.
//   - A batch is committed in one transaction: either every fact in it is
//     durable or none is.
//   - Reads are ordered by event number (ORDER BY eve ASC).
//
// # Encoding
//
// Each fact's payload is stored as canonical JSON (ir.EncodeJob), the
// same bytes folded into the engine's mug, so a stored log can be
// re-verified without re-encoding.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: A committed append survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store

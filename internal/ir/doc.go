// Package ir defines the data that flows through a pier.
//
// Every other internal package imports ir; ir imports nothing internal.
//
// Contents:
//   - Value: the sealed payload model (String, Int, Bool, List, Map). No floats,
//     no null.
//   - MarshalCanonical: deterministic JSON used for both storage and checksums.
//   - Mug: the 31-bit checksum chained across computed events.
//   - Event, Fact, Gift, Effect, Peek: the units moved between the log, the
//     engine and the driver chain.
//
// Event numbers are uint64 and gapless. Event 0 is "nothing computed yet".
package ir

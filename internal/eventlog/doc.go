// Package eventlog is the Pebble backend of a pier's event log.
//
// Facts are stored under big-endian event keys so iteration order is event
// order. Each value is a framed record carrying the fact's mug and its
// encoded job, followed by a crc32c of both. The highest event is kept in
// a metadata key updated in the same batch as the facts it covers.
package eventlog

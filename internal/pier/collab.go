package pier

import (
	"context"

	"github.com/roach88/vere/internal/ir"
)

// Poster runs fn on the reactor goroutine.
// Returns false if the reactor has stopped and fn will never run.
//
// Every collaborator completion must arrive through a Poster, never
// synchronously from inside the request call.
type Poster interface {
	Post(fn func()) bool
}

// Meta is the identity recorded when a pier is created.
type Meta struct {
	Who       string
	Fake      bool
	Lifecycle uint64
}

// Log is the durable, append-only event store.
//
// Durable and Pending are read on the reactor goroutine and only change
// there, just before the matching completion runs.
type Log interface {
	// Durable is the highest event known to be on stable storage.
	Durable() uint64

	// Pending is the highest event handed to Write.
	Pending() uint64

	// Read fetches up to count facts starting at start.
	Read(start, count uint64, done func(facts []ir.Fact, err error))

	// Write appends f. Facts must be written in event order without gaps.
	Write(f ir.Fact, done func(eve uint64, err error))

	// SaveMeta records the pier's identity. Called before the reactor runs.
	SaveMeta(m Meta) error

	// Close flushes pending writes and releases the store.
	Close() error
}

// WorkResult is the outcome of computing one event.
type WorkResult struct {
	Event   ir.Event // the event as computed, including its timestamp
	Eve     uint64
	Mug     uint32
	Effects []ir.Effect
}

// Engine is the deterministic computation worker.
//
// Eve, Mug and Depth are read on the reactor goroutine and change only
// there, just before the matching completion runs. Depth counts every
// outstanding request (work, peek, play, save, cram).
type Engine interface {
	// Start brings the engine up at its last snapshot.
	Start(done func(err error))

	// Eve is the highest event the engine has computed.
	Eve() uint64

	// Mug is the checksum of the engine's state at Eve.
	Mug() uint32

	// Depth is the number of requests awaiting completion.
	Depth() int

	// Work computes one new event. A rejected event returns a *Goof and
	// does not advance Eve.
	Work(ev ir.Event, done func(res WorkResult, err error))

	// Peek runs a read-only namespace query.
	Peek(q ir.Peek, done func(v ir.Value, err error))

	// Play recomputes a contiguous batch of logged facts. On failure err is
	// a *Goof whose Eve is the last fact that succeeded.
	Play(facts []ir.Fact, done func(mug uint32, err error))

	// Save writes a non-portable snapshot.
	Save(done func(err error))

	// Cram writes a portable snapshot.
	Cram(done func(err error))

	// Halt stops the engine immediately, dropping outstanding requests.
	Halt()

	// Exit stops the engine after outstanding requests complete.
	Exit(done func())
}

// DriverChain is the ordered set of I/O drivers that produce events and
// consume effects.
type DriverChain interface {
	// Start initializes every driver.
	Start()

	// Live reports whether every driver has finished starting.
	Live() bool

	// Next pops the next pending event, depth first across nested drivers.
	Next() (ir.Event, bool)

	// Deliver hands a released effect batch to the drivers.
	Deliver(g ir.Gift)

	// Done tells the originating driver its event was computed.
	Done(ev ir.Event)

	// Bail tells the originating driver its event was rejected.
	Bail(ev ir.Event, err error)

	// Teardown stops every driver.
	Teardown()
}

// BootChecker verifies that no other live copy of this ship exists.
//
// record is the engine's answer to the "boot" peek, nil if it had none,
// and scryErr is set if the peek itself failed. A nil return permits boot;
// CheckBoot logs its own warnings for inconclusive checks.
type BootChecker interface {
	CheckBoot(ctx context.Context, who string, record ir.Value, scryErr error) error
}

package pier

import (
	"errors"
	"log/slog"

	"github.com/roach88/vere/internal/ir"
)

// BootSequence is everything committed to a fresh pier's log before the
// engine first runs.
type BootSequence struct {
	// Lifecycle are the raw boot formulas. Their count is the pier's
	// lifecycle length.
	Lifecycle []ir.Value

	// Modules are kernel module events, installed after the formulas.
	Modules []ir.Event

	// Userspace are application events, installed last.
	Userspace []ir.Event
}

// bootPhase waits for the boot sequence to become durable.
type bootPhase struct {
	p        *Pier
	last     uint64
	finished bool
	disposed bool
}

// Boot commits seq as the start of a fresh pier's log.
//
// The identity is saved first, then the lifecycle facts, then module and
// userspace events stamped a quantum apart. A version negotiation event
// leads the module events and a boot event carrying the identity leads
// the userspace events. Call before Start.
func (p *Pier) Boot(seq BootSequence) error {
	if p.state != StateInit {
		return NewInvariantError("boot in state %s", p.state)
	}
	if len(seq.Lifecycle) == 0 {
		return errors.New("boot sequence has no lifecycle formulas")
	}
	if n := p.disk.Pending(); n != 0 {
		return NewInvariantError("boot into a log that already holds %d events", n)
	}

	p.lifecycle = uint64(len(seq.Lifecycle))
	if err := p.disk.SaveMeta(Meta{Who: p.who, Fake: p.fake, Lifecycle: p.lifecycle}); err != nil {
		return NewLogError(ErrCodeLogWrite, 0, err)
	}

	p.setState(StateBoot)
	b := &bootPhase{p: p}
	p.ph = b

	var eve uint64
	for _, formula := range seq.Lifecycle {
		eve++
		p.disk.Write(ir.Fact{Eve: eve, Formula: formula}, b.onWrite)
	}

	events := make([]ir.Event, 0, len(seq.Modules)+len(seq.Userspace)+2)
	events = append(events, p.wyrdEvent())
	events = append(events, seq.Modules...)
	events = append(events, p.bootEvent())
	events = append(events, seq.Userspace...)

	for _, ev := range events {
		eve++
		p.disk.Write(ir.Fact{Eve: eve, Event: ev.Stamped(p.clock.Next())}, b.onWrite)
	}
	b.last = eve

	slog.Info("boot planned",
		"who", p.who,
		"fake", p.fake,
		"lifecycle", p.lifecycle,
		"events", eve)
	return nil
}

func (p *Pier) bootEvent() ir.Event {
	return ir.Event{
		Wire: ir.Wire{"d"},
		Card: ir.Card{
			Tag: "boot",
			Data: ir.Map{
				"who":  ir.String(p.who),
				"fake": ir.Bool(p.fake),
			},
		},
	}
}

func (b *bootPhase) onWrite(eve uint64, err error) {
	p := b.p
	if p.gone() || b.disposed {
		return
	}
	if err != nil {
		p.bail(NewLogError(ErrCodeLogWrite, eve, err))
		return
	}
	b.maybeFinish()
}

// maybeFinish leaves BOOT once the whole sequence is durable and the
// engine is up: to PLAY, or straight to WYRD if nothing needs replaying.
func (b *bootPhase) maybeFinish() {
	p := b.p
	if b.finished || b.disposed || !p.engineLive || p.disk.Durable() < b.last {
		return
	}
	b.finished = true
	p.ph = nil

	durable := p.disk.Durable()
	slog.Info("boot sequence durable", "eve", durable)
	if p.eng.Eve() == durable {
		p.startWyrd()
		return
	}
	p.startPlay(durable)
}

func (b *bootPhase) advance() {}

func (b *bootPhase) dispose() {
	b.disposed = true
}

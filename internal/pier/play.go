package pier

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/observability"
)

// playPhase streams the durable log into the engine.
//
// Reads of up to ReadBatch facts fill a pending queue; each tick sends one
// batch of up to PlayBatch facts from it. Several reads and several
// batches may be outstanding at once. The first batch of a session is at
// least lifecycle long so the boot formulas are never split.
type playPhase struct {
	p      *Pier
	target uint64 // replay up to and including this event
	sent   uint64 // last event handed to the engine
	req    uint64 // first event of the latest read

	first    bool
	pending  fifo[ir.Fact]
	finished bool
	disposed bool
}

func newPlayPhase(p *Pier, target uint64) *playPhase {
	pl := &playPhase{
		p:      p,
		target: target,
		sent:   p.eng.Eve(),
		first:  true,
	}
	slog.Info("replay starting", "from", pl.sent+1, "to", target, "durable", p.disk.Durable())
	return pl
}

func (pl *playPhase) advance() {
	if pl.finished || pl.disposed {
		return
	}
	p := pl.p

	eve := p.eng.Eve()
	if !p.invariant(eve <= pl.target, "replay overshot: engine at %d, target %d", eve, pl.target) {
		return
	}
	if eve == pl.target {
		pl.finished = true
		pl.pending.clear()
		p.playDone(pl.target)
		return
	}

	pl.send()
	pl.read()
}

func (pl *playPhase) dispose() {
	pl.disposed = true
	pl.pending.clear()
}

// firstSize is how many facts the first batch of the session must carry.
func (pl *playPhase) firstSize() uint64 {
	n := max(pl.p.lifecycle, uint64(pl.p.opts.PlayBatch))
	return min(n, pl.target-pl.sent)
}

// send detaches at most one batch per tick.
func (pl *playPhase) send() {
	if pl.pending.len() == 0 {
		return
	}

	var n uint64
	if pl.first {
		n = pl.firstSize()
		if uint64(pl.pending.len()) < n {
			return
		}
	} else {
		n = min(pl.target-pl.sent, uint64(pl.p.opts.PlayBatch))
	}

	batch := pl.pending.take(int(n))
	if len(batch) == 0 {
		return
	}
	pl.first = false
	pl.sent = batch[len(batch)-1].Eve

	slog.Debug("replay send", "from", batch[0].Eve, "to", pl.sent)
	sentAt := time.Now()
	pl.p.eng.Play(batch, func(mug uint32, err error) {
		pl.onPlayed(batch, sentAt, mug, err)
	})
}

func (pl *playPhase) read() {
	last := pl.sent
	if head, ok := pl.pending.peekHead(); ok {
		tail, _ := pl.pending.peekTail()
		last = tail.Eve
		full := tail.Eve-head.Eve >= uint64(pl.p.opts.PlayBatch)
		if full && !(pl.first && uint64(pl.pending.len()) < pl.firstSize()) {
			return
		}
	}

	next := last + 1
	count := min(pl.target-last, uint64(pl.p.opts.ReadBatch))
	if count == 0 || next <= pl.req {
		return
	}

	pl.req = next
	slog.Debug("replay read", "from", next, "count", count)
	pl.p.disk.Read(next, count, func(facts []ir.Fact, err error) {
		pl.onRead(next, count, facts, err)
	})
}

func (pl *playPhase) onRead(start, count uint64, facts []ir.Fact, err error) {
	p := pl.p
	if p.gone() || pl.disposed {
		return
	}
	if err != nil {
		p.bail(NewLogError(ErrCodeLogRead, start, err))
		return
	}
	if len(facts) == 0 {
		p.bail(NewLogError(ErrCodeLogRead, start, fmt.Errorf("short read: 0 of %d facts", count)))
		return
	}

	last := pl.sent
	if tail, ok := pl.pending.peekTail(); ok {
		last = tail.Eve
	}
	for _, f := range facts {
		if !p.invariant(f.Eve == last+1, "replay read out of order: got %d after %d", f.Eve, last) {
			return
		}
		if !p.invariant(f.Eve <= pl.target, "replay read %d past target %d", f.Eve, pl.target) {
			return
		}
		pl.pending.push(f)
		last = f.Eve
	}
}

func (pl *playPhase) onPlayed(batch []ir.Fact, sentAt time.Time, mug uint32, err error) {
	p := pl.p
	if p.gone() || pl.disposed {
		return
	}
	if err != nil {
		pl.failed(batch, err)
		return
	}

	observability.RecordReplayBatch(len(batch), time.Since(sentAt))

	last := batch[len(batch)-1]
	if last.Mug != 0 && last.Mug != mug {
		observability.RecordMugMismatch()
		slog.Warn("replay mug mismatch",
			"eve", last.Eve,
			"logged", fmt.Sprintf("%x", last.Mug),
			"computed", fmt.Sprintf("%x", mug))
		if p.opts.StrictChecksum {
			p.bail(&PierError{
				Code:    ErrCodeChecksum,
				Message: fmt.Sprintf("logged mug %x, computed %x", last.Mug, mug),
				Eve:     last.Eve,
			})
			return
		}
	}
	slog.Debug("replay batch done", "eve", last.Eve, "mug", fmt.Sprintf("%x", mug))
}

// failed reports the fact the engine could not replay and bails.
func (pl *playPhase) failed(batch []ir.Fact, err error) {
	p := pl.p

	good := batch[0].Eve - 1
	var goof *Goof
	if errors.As(err, &goof) {
		good = goof.Eve
	}

	bad := batch[0]
	for _, f := range batch {
		if f.Eve > good {
			bad = f
			break
		}
		if f.Eve == good && f.Mug != 0 && goof != nil && goof.Mug != 0 && f.Mug != goof.Mug {
			slog.Warn("replay mug mismatch before failure",
				"eve", f.Eve,
				"logged", fmt.Sprintf("%x", f.Mug),
				"computed", fmt.Sprintf("%x", goof.Mug))
		}
	}

	what := "lifecycle formula"
	if !bad.IsLifecycle() {
		what = fmt.Sprintf("%%%s on %s", bad.Event.Card.Tag, bad.Event.Wire)
	}

	slog.Error("replay failed", "eve", bad.Eve, "event", what, "error", err)
	p.bail(&PierError{
		Code:    ErrCodePlay,
		Message: "replay failed on " + what,
		Eve:     bad.Eve,
		Trace:   goofTrace(err),
		Err:     err,
	})
}

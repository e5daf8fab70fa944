package pier

import (
	"fmt"
	"log/slog"

	"github.com/roach88/vere/internal/ir"
)

// wyrdEvent builds the version negotiation event: a session nonce, the
// runtime's identity and the kelvin vector it supports.
func (p *Pier) wyrdEvent() ir.Event {
	sen := ir.Mug(0, []byte(p.clock.Current().String()))

	kel := make(ir.List, 0, len(ir.Kelvins))
	for _, k := range ir.Kelvins {
		kel = append(kel, ir.Map{"name": ir.String(k.Name), "version": ir.Int(k.Version)})
	}

	return ir.Event{
		Wire: ir.Wire{"arvo"},
		Card: ir.Card{
			Tag: "wyrd",
			Data: ir.Map{
				"sen": ir.String(fmt.Sprintf("0v%x", sen)),
				"ver": ir.Map{
					"name":    ir.String(ir.RuntimeName),
					"pace":    ir.String(ir.RuntimePace),
					"version": ir.String(ir.RuntimeVersion),
				},
				"kel": kel,
			},
		},
	}
}

// downgrade scans effects for a "wend" demand the runtime cannot meet.
func downgrade(effects []ir.Effect) (ir.Kelvin, int64, bool) {
	for _, fx := range effects {
		if fx.Card.Tag != "wend" {
			continue
		}
		list, ok := fx.Card.Data.(ir.List)
		if !ok {
			continue
		}
		for _, item := range list {
			m, ok := item.(ir.Map)
			if !ok {
				continue
			}
			name := m.Text("name")
			want, ok := m.Number("version")
			if !ok {
				continue
			}
			if have, known := ir.KelvinOf(name); known && have != want {
				return ir.Kelvin{Name: name, Version: want}, have, true
			}
		}
	}
	return ir.Kelvin{}, 0, false
}

// wyrdPhase has exactly one event in flight: the negotiation itself.
type wyrdPhase struct {
	p        *Pier
	disposed bool
}

func (w *wyrdPhase) start() {
	p := w.p
	ev := p.wyrdEvent().Stamped(p.clock.Next())
	slog.Info("negotiating versions", "runtime", ir.RuntimeVersion, "eve", p.eng.Eve()+1)
	p.eng.Work(ev, w.onDone)
}

func (w *wyrdPhase) advance() {}

func (w *wyrdPhase) dispose() {
	w.disposed = true
}

func (w *wyrdPhase) onDone(res WorkResult, err error) {
	p := w.p
	if p.gone() || w.disposed {
		return
	}
	if !p.invariant(p.state == StateWyrd, "wyrd completion in state %s", p.state) {
		return
	}

	if err != nil {
		p.fail(&PierError{
			Code:    ErrCodeWyrd,
			Message: "kernel rejected version negotiation",
			Eve:     p.eng.Eve() + 1,
			Trace:   goofTrace(err),
			Err:     err,
		})
		return
	}

	if k, have, bad := downgrade(res.Effects); bad {
		p.fail(&PierError{
			Code:    ErrCodeVersion,
			Message: fmt.Sprintf("kernel requires %s %d, runtime supports %s %d", k.Name, k.Version, k.Name, have),
			Eve:     res.Eve,
		})
		return
	}

	slog.Info("wyrd ok", "eve", res.Eve)
	fact := ir.Fact{Eve: res.Eve, Mug: res.Mug, Event: res.Event}

	p.workInit()
	p.disk.Write(fact, p.work.onWriteDone)
	if err := p.work.gifts.Plan(ir.Gift{Eve: res.Eve, Effects: res.Effects}); err != nil {
		p.bail(NewInvariantError("%v", err))
	}
}

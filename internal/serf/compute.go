package serf

import (
	"fmt"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// state is the engine's computed state. Owned by the worker goroutine.
type state struct {
	eve uint64
	mug uint32
	ns  ir.Map
}

func newState() *state {
	return &state{ns: ir.Map{}}
}

// apply computes f on top of s. On error s is unchanged.
func (s *state) apply(f ir.Fact, kernel []ir.Kelvin) ([]ir.Effect, error) {
	if f.Eve != s.eve+1 {
		return nil, s.goof("exit", fmt.Sprintf("event %d out of order after %d", f.Eve, s.eve), f)
	}

	// The mug first: card mutates the namespace in place.
	mug, err := ir.FactMug(s.mug, f)
	if err != nil {
		return nil, s.goof("meme", err.Error(), f)
	}

	var fx []ir.Effect
	if !f.IsLifecycle() {
		fx, err = s.card(f, kernel)
		if err != nil {
			return nil, err
		}
	}
	s.eve = f.Eve
	s.mug = mug
	return fx, nil
}

func (s *state) card(f ir.Fact, kernel []ir.Kelvin) ([]ir.Effect, error) {
	ev := f.Event
	data, _ := ev.Card.Data.(ir.Map)

	switch ev.Card.Tag {
	case "put":
		key := data.Text("key")
		val, ok := data["value"]
		if key == "" || !ok {
			return nil, s.goof("exit", "put needs key and value", f)
		}
		s.ns[key] = val
		return nil, nil

	case "del":
		key := data.Text("key")
		if key == "" {
			return nil, s.goof("exit", "del needs key", f)
		}
		delete(s.ns, key)
		return nil, nil

	case "boot":
		if who := data.Text("who"); who != "" {
			s.ns["who"] = ir.String(who)
		}
		return nil, nil

	case "ping":
		return []ir.Effect{{Wire: ev.Wire, Card: ir.Card{Tag: "pong"}}}, nil

	case "doze":
		ms, ok := data.Number("ms")
		if !ok || ms < 0 {
			return nil, s.goof("exit", "doze needs ms", f)
		}
		return []ir.Effect{{
			Wire: ir.Wire{"behn"},
			Card: ir.Card{Tag: "doze", Data: ir.Map{"ms": ir.Int(ms)}},
		}}, nil

	case "wake":
		n, _ := s.ns.Number("wakes")
		s.ns["wakes"] = ir.Int(n + 1)
		return nil, nil

	case "belt":
		return []ir.Effect{{
			Wire: ir.Wire{"term", "1"},
			Card: ir.Card{Tag: "blit", Data: ir.Map{"line": ir.String(data.Text("line"))}},
		}}, nil

	case "wyrd":
		return wyrd(data, kernel), nil

	case "crash":
		reason := data.Text("reason")
		if reason == "" {
			reason = "crash requested"
		}
		return nil, s.goof("exit", reason, f)

	default:
		return nil, s.goof("exit", "no handler for %"+ev.Card.Tag, f)
	}
}

// wyrd answers a version negotiation. If any kelvin the kernel runs
// differs from the runtime's, the kernel demands its own vector.
func wyrd(data ir.Map, kernel []ir.Kelvin) []ir.Effect {
	offered := map[string]int64{}
	if kel, ok := data["kel"].(ir.List); ok {
		for _, item := range kel {
			if m, ok := item.(ir.Map); ok {
				if v, ok := m.Number("version"); ok {
					offered[m.Text("name")] = v
				}
			}
		}
	}

	mismatch := false
	for _, k := range kernel {
		if v, ok := offered[k.Name]; !ok || v != k.Version {
			mismatch = true
			break
		}
	}
	if !mismatch {
		return nil
	}

	want := make(ir.List, 0, len(kernel))
	for _, k := range kernel {
		want = append(want, ir.Map{"name": ir.String(k.Name), "version": ir.Int(k.Version)})
	}
	return []ir.Effect{{Wire: ir.Wire{"arvo"}, Card: ir.Card{Tag: "wend", Data: want}}}
}

func (s *state) goof(mote, reason string, f ir.Fact) *pier.Goof {
	what := "lifecycle formula"
	if !f.IsLifecycle() {
		what = fmt.Sprintf("%%%s on %s", f.Event.Card.Tag, f.Event.Wire)
	}
	return &pier.Goof{
		Eve:    f.Eve,
		Mug:    s.mug,
		Mote:   mote,
		Reason: reason,
		Trace:  []string{fmt.Sprintf("computing %s at %d", what, f.Eve), reason},
	}
}

// peek answers a namespace query against s.
func (s *state) peek(path ir.Path, boot ir.Value) (ir.Value, error) {
	switch {
	case len(path) == 1 && path[0] == "boot":
		return boot, nil
	case len(path) == 2 && path[0] == "x":
		return s.ns[path[1]], nil
	case len(path) == 1 && path[0] == "x":
		keys := s.ns.SortedKeys()
		out := make(ir.List, len(keys))
		for i, k := range keys {
			out[i] = ir.String(k)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("no such path %s", path)
	}
}

package ir

import (
	"fmt"
)

// EncodeJob serializes the payload of f (not its number or mug) as
// canonical JSON. This is the byte string stored in the log and folded
// into mugs.
func EncodeJob(f Fact) ([]byte, error) {
	if f.IsLifecycle() {
		return MarshalCanonical(Map{"formula": f.Formula})
	}
	return MarshalCanonical(EventValue(f.Event))
}

// DecodeJob parses a payload produced by EncodeJob into f.
func DecodeJob(data []byte, f *Fact) error {
	v, err := DecodeValue(data)
	if err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	m, ok := v.(Map)
	if !ok {
		return fmt.Errorf("decode job: expected object, got %T", v)
	}
	if formula, ok := m["formula"]; ok {
		f.Formula = formula
		f.Event = Event{}
		return nil
	}
	ev, err := ValueEvent(m)
	if err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	f.Event = ev
	f.Formula = nil
	return nil
}

// EventValue converts an event to its Value form.
func EventValue(e Event) Map {
	card := Map{"tag": String(e.Card.Tag)}
	if e.Card.Data != nil {
		card["data"] = e.Card.Data
	}
	return Map{
		"time": Int(e.Time),
		"wire": pathValue(e.Wire),
		"card": card,
	}
}

// ValueEvent is the inverse of EventValue.
func ValueEvent(m Map) (Event, error) {
	var ev Event

	t, ok := m.Number("time")
	if !ok {
		return ev, fmt.Errorf("event missing time")
	}
	ev.Time = t

	wire, err := valuePath(m["wire"])
	if err != nil {
		return ev, fmt.Errorf("event wire: %w", err)
	}
	ev.Wire = Wire(wire)

	card, ok := m["card"].(Map)
	if !ok {
		return ev, fmt.Errorf("event missing card")
	}
	ev.Card.Tag = card.Text("tag")
	if ev.Card.Tag == "" {
		return ev, fmt.Errorf("event card missing tag")
	}
	ev.Card.Data = card["data"]
	return ev, nil
}

func pathValue(segs []string) List {
	out := make(List, len(segs))
	for i, s := range segs {
		out[i] = String(s)
	}
	return out
}

func valuePath(v Value) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.(List)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]string, len(list))
	for i, seg := range list {
		s, ok := seg.(String)
		if !ok {
			return nil, fmt.Errorf("segment %d: expected string, got %T", i, seg)
		}
		out[i] = string(s)
	}
	return out, nil
}

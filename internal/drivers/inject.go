package drivers

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vere/internal/ir"
)

// Inject is a programmatic event source. Its events carry wires starting
// with "inject"; effects sent back on such wires are recorded.
type Inject struct {
	queue   []ir.Event
	effects []ir.Effect
	sent    int
	done    int
	bailed  int
	started bool

	// OnDrained, if set, runs once every injected event has completed.
	OnDrained func()
}

// NewInject creates an Inject driver with events already queued.
func NewInject(events ...ir.Event) *Inject {
	i := &Inject{}
	for _, ev := range events {
		i.Add(ev)
	}
	return i
}

func (i *Inject) Name() string { return "inject" }

// Add queues ev, prefixing its wire with "inject" if needed.
func (i *Inject) Add(ev ir.Event) {
	if ev.Wire.Driver() != i.Name() {
		ev.Wire = append(ir.Wire{i.Name()}, ev.Wire...)
	}
	i.queue = append(i.queue, ev)
}

func (i *Inject) Start()     { i.started = true }
func (i *Inject) Live() bool { return i.started }

func (i *Inject) Next() (ir.Event, bool) {
	if !i.started || len(i.queue) == 0 {
		return ir.Event{}, false
	}
	ev := i.queue[0]
	i.queue = i.queue[1:]
	i.sent++
	return ev, true
}

func (i *Inject) Claim(fx ir.Effect) bool {
	if fx.Wire.Driver() != i.Name() {
		return false
	}
	i.effects = append(i.effects, fx)
	return true
}

func (i *Inject) Done(ev ir.Event) {
	i.done++
	i.drained()
}

func (i *Inject) Bail(ev ir.Event, err error) {
	i.bailed++
	slog.Warn("injected event rejected", "tag", ev.Card.Tag, "error", err)
	i.drained()
}

func (i *Inject) drained() {
	if len(i.queue) == 0 && i.done+i.bailed == i.sent && i.OnDrained != nil {
		fn := i.OnDrained
		i.OnDrained = nil
		fn()
	}
}

func (i *Inject) Teardown() { i.started = false }

// Effects returns every effect sent back to injected wires.
func (i *Inject) Effects() []ir.Effect { return append([]ir.Effect(nil), i.effects...) }

// Completed returns how many injected events were computed and rejected.
func (i *Inject) Completed() (done, bailed int) { return i.done, i.bailed }

// EventSpec is one event in an inject file.
type EventSpec struct {
	Wire []string `yaml:"wire"`
	Tag  string   `yaml:"tag"`
	Data any      `yaml:"data"`
}

// Event converts s to an event.
func (s EventSpec) Event() (ir.Event, error) {
	if s.Tag == "" {
		return ir.Event{}, fmt.Errorf("event missing tag")
	}
	ev := ir.Event{Wire: ir.Wire(s.Wire), Card: ir.Card{Tag: s.Tag}}
	if s.Data != nil {
		v, err := ir.FromAny(s.Data)
		if err != nil {
			return ir.Event{}, fmt.Errorf("event %%%s data: %w", s.Tag, err)
		}
		ev.Card.Data = v
	}
	return ev, nil
}

// LoadEvents reads a YAML list of events.
func LoadEvents(path string) ([]ir.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return ParseEvents(data)
}

// ParseEvents parses a YAML list of events.
func ParseEvents(data []byte) ([]ir.Event, error) {
	var specs []EventSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	out := make([]ir.Event, 0, len(specs))
	for i, s := range specs {
		ev, err := s.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

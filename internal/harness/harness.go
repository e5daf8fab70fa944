package harness

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/roach88/vere/internal/config"
	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/ship"
)

// RunTimeout bounds a single session of a scenario.
var RunTimeout = 30 * time.Second

// Run executes a scenario in a fresh temporary pier directory.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "vere-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create pier directory: %w", err)
	}
	defer os.RemoveAll(dir)

	return RunIn(dir, scenario)
}

// RunIn executes a scenario against the pier in dir, which should be
// empty so the first run boots it.
//
// Execution flow:
//  1. Open the pier and boot it on the first run
//  2. Inject the run's events and exit once they complete
//  3. Repeat for each run, peeking the namespace before the last exits
//  4. Read the log back and evaluate assertions
func RunIn(dir string, scenario *Scenario) (*Result, error) {
	h := &harness{
		scenario: scenario,
		cfg:      configFor(dir, scenario),
		result:   NewResult(),
		keys:     peekKeys(scenario),
	}

	boot := ship.DefaultPill()
	if scenario.Pill != nil {
		seq, err := scenario.Pill.Sequence()
		if err != nil {
			return nil, fmt.Errorf("invalid pill: %w", err)
		}
		boot = seq
	}

	for i, step := range scenario.Runs {
		if err := h.run(i, step, boot); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	if err := h.readLog(); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

type harness struct {
	scenario *Scenario
	cfg      config.Config
	result   *Result
	keys     []string
}

func configFor(dir string, s *Scenario) config.Config {
	cfg := config.Default()
	cfg.Dir = dir
	cfg.Who = s.Who
	cfg.Fake = s.Fake
	cfg.NoSync = true
	cfg.StrictChecksum = s.StrictChecksum
	if s.Backend != "" {
		cfg.Backend = s.Backend
	}
	return cfg
}

// peekKeys is every key listed under peek or named by a namespace
// assertion, without duplicates.
func peekKeys(s *Scenario) []string {
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range s.Peek {
		add(k)
	}
	for _, a := range s.Assertions {
		if a.Type == AssertNamespace {
			add(a.Key)
		}
	}
	return keys
}

func (h *harness) run(index int, step RunStep, boot pier.BootSequence) error {
	events := make([]ir.Event, 0, len(step.Events))
	for i, spec := range step.Events {
		ev, err := spec.Event()
		if err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, ev)
	}

	var kernel []ir.Kelvin
	for _, k := range h.scenario.Kernel {
		kernel = append(kernel, ir.Kelvin{Name: k.Name, Version: k.Version})
	}

	cfg := h.cfg
	cfg.Til = step.Til

	rec := RunRecord{States: []string{}, Effects: []EffectRecord{}}
	last := index == len(h.scenario.Runs)-1

	var s *ship.Ship
	finish := func() {
		if !last || len(h.keys) == 0 {
			s.Pier.Exit()
			return
		}
		h.peek(s.Pier, h.keys, s.Pier.Exit)
	}

	opts := ship.Options{
		Events:  events,
		Kernel:  kernel,
		OnState: func(st pier.State) { rec.States = append(rec.States, st.String()) },
		Tap: func(fx ir.Effect) {
			rec.Effects = append(rec.Effects, EffectRecord{Wire: fx.Wire.String(), Tag: fx.Card.Tag})
		},
	}
	if len(events) == 0 {
		opts.OnLive = func() { s.Reactor.Post(finish) }
	}

	s, err := ship.Open(cfg, opts)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		s.Inject.OnDrained = finish
	}
	if s.IsNew() {
		if err := s.Boot(boot); err != nil {
			s.Disk.Close()
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()

	runErr := s.Run(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("timed out in state %s: %w", s.Pier.State(), ctx.Err())
	}

	rec.ExitCode = s.Pier.ExitCode()
	rec.Error = string(pier.CodeOf(runErr))
	if runErr != nil && rec.Error == "" {
		rec.Error = runErr.Error()
	}
	h.result.Runs = append(h.result.Runs, rec)

	want := step.Expect
	if want == nil {
		want = &ExpectClause{}
	}
	if rec.ExitCode != want.ExitCode {
		h.result.AddError(fmt.Sprintf("run %d: expected exit code %d, got %d (%s)", index, want.ExitCode, rec.ExitCode, rec.Error))
	}
	if rec.Error != want.Error {
		h.result.AddError(fmt.Sprintf("run %d: expected error %q, got %q", index, want.Error, rec.Error))
	}
	return nil
}

// peek reads keys one at a time into the result's namespace, then calls
// done. Runs on the reactor goroutine.
func (h *harness) peek(p *pier.Pier, keys []string, done func()) {
	if len(keys) == 0 {
		done()
		return
	}
	key := keys[0]
	p.Peek(ir.Peek{Path: ir.Path{"x", key}}, func(v ir.Value, err error) {
		if err != nil {
			h.result.AddError(fmt.Sprintf("peek %s: %v", key, err))
		} else if v != nil {
			h.result.Namespace[key] = v
		}
		h.peek(p, keys[1:], done)
	})
}

func (h *harness) readLog() error {
	log, err := ship.OpenLog(h.cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := context.Background()
	last, err := log.LastEvent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	if last == 0 {
		return nil
	}

	facts, err := log.ReadFacts(ctx, 1, last)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	for _, f := range facts {
		ev := LoggedEvent{Eve: f.Eve, Formula: f.IsLifecycle()}
		if !ev.Formula {
			ev.Wire = f.Event.Wire.String()
			ev.Tag = f.Event.Card.Tag
		}
		h.result.Events = append(h.result.Events, ev)
	}
	return nil
}

package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vere/internal/config"
	"github.com/roach88/vere/internal/drivers"
	"github.com/roach88/vere/internal/ship"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	Who     string `yaml:"who"`
	Fake    bool   `yaml:"fake"`
	Backend string `yaml:"backend,omitempty"`

	// StrictChecksum fails replay on a mug mismatch.
	StrictChecksum bool `yaml:"strict_checksum,omitempty"`

	// Pill overrides the built-in boot sequence.
	Pill *ship.Pill `yaml:"pill,omitempty"`

	// Kernel overrides the kelvin vector the engine runs.
	Kernel []KelvinSpec `yaml:"kernel,omitempty"`

	// Runs are successive sessions of the same pier.
	Runs []RunStep `yaml:"runs"`

	// Peek lists namespace keys read before the last run exits.
	Peek []string `yaml:"peek,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// KelvinSpec is one kelvin of a kernel override.
type KelvinSpec struct {
	Name    string `yaml:"name"`
	Version int64  `yaml:"version"`
}

// RunStep is one session of the pier.
type RunStep struct {
	// Events are injected once the pier is working.
	Events []drivers.EventSpec `yaml:"events,omitempty"`

	// Til replays only up to this event, then exits.
	Til uint64 `yaml:"til,omitempty"`

	// Expect is checked against how the run ended. Nil means a clean exit.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies how a run should end.
type ExpectClause struct {
	ExitCode int `yaml:"exit_code"`

	// Error is the expected pier error code, e.g. VERSION_MISMATCH.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the outcome of the whole scenario.
type Assertion struct {
	// Type is one of namespace, state_order, effect_count, event_count.
	Type string `yaml:"type"`

	// Key and Value are used by namespace. A nil Value asserts absence.
	Key   string `yaml:"key,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Run selects the run for state_order, counting from 0.
	Run int `yaml:"run,omitempty"`

	States []string `yaml:"states,omitempty"`

	// Tag and Count are used by effect_count and event_count.
	Tag   string `yaml:"tag,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertNamespace   = "namespace"
	AssertStateOrder  = "state_order"
	AssertEffectCount = "effect_count"
	AssertEventCount  = "event_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Who == "" {
		return fmt.Errorf("who is required")
	}
	switch s.Backend {
	case "", config.BackendSQLite, config.BackendPebble:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		for j, ev := range run.Events {
			if ev.Tag == "" {
				return fmt.Errorf("runs[%d].events[%d]: tag is required", i, j)
			}
		}
	}
	for i, k := range s.Kernel {
		if k.Name == "" {
			return fmt.Errorf("kernel[%d]: name is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertNamespace:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for namespace", index)
		}
	case AssertStateOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_order", index)
		}
		if a.Run < 0 || a.Run >= runs {
			return fmt.Errorf("assertions[%d]: run %d out of range", index, a.Run)
		}
	case AssertEffectCount, AssertEventCount:
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: tag is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

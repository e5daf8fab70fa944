package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/vere/internal/ir"
)

// Snapshot renders the deterministic parts of a result as canonical JSON:
// the scenario name, each run's states, effects and exit, the logged
// events and the peeked namespace. Timestamps and mugs are left out.
func Snapshot(name string, result *Result) ([]byte, error) {
	runs := make(ir.List, len(result.Runs))
	for i, run := range result.Runs {
		states := make(ir.List, len(run.States))
		for j, st := range run.States {
			states[j] = ir.String(st)
		}
		effects := make(ir.List, len(run.Effects))
		for j, fx := range run.Effects {
			effects[j] = ir.Map{"wire": ir.String(fx.Wire), "tag": ir.String(fx.Tag)}
		}
		m := ir.Map{
			"states":    states,
			"effects":   effects,
			"exit_code": ir.Int(run.ExitCode),
		}
		if run.Error != "" {
			m["error"] = ir.String(run.Error)
		}
		runs[i] = m
	}

	events := make(ir.List, len(result.Events))
	for i, ev := range result.Events {
		m := ir.Map{"eve": ir.Int(int64(ev.Eve))}
		if ev.Formula {
			m["formula"] = ir.Bool(true)
		} else {
			m["wire"] = ir.String(ev.Wire)
			m["tag"] = ir.String(ev.Tag)
		}
		events[i] = m
	}

	return ir.MarshalCanonical(ir.Map{
		"name":      ir.String(name),
		"runs":      runs,
		"events":    events,
		"namespace": result.Namespace,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

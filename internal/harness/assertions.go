package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/vere/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages, or nil if all pass.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertNamespace:
		return assertNamespace(result.Namespace, a)
	case AssertStateOrder:
		return assertStateOrder(result.Runs, a)
	case AssertEffectCount:
		return assertEffectCount(result.Runs, a)
	case AssertEventCount:
		return assertEventCount(result.Events, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertNamespace checks a peeked key. A nil expected value asserts the
// key is absent.
func assertNamespace(ns ir.Map, a Assertion) error {
	got, found := ns[a.Key]
	if a.Value == nil {
		if found {
			return &AssertionError{
				Type:     AssertNamespace,
				Expected: fmt.Sprintf("%s absent", a.Key),
				Actual:   fmt.Sprintf("%s = %s", a.Key, render(got)),
			}
		}
		return nil
	}

	want, err := ir.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("namespace %s: %w", a.Key, err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertNamespace,
			Expected: fmt.Sprintf("%s = %s", a.Key, render(want)),
			Actual:   fmt.Sprintf("%s absent", a.Key),
		}
	}
	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     AssertNamespace,
			Expected: fmt.Sprintf("%s = %s", a.Key, render(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Key, render(got)),
		}
	}
	return nil
}

// assertStateOrder checks the exact transitions of one run.
func assertStateOrder(runs []RunRecord, a Assertion) error {
	if a.Run >= len(runs) {
		return fmt.Errorf("run %d did not happen", a.Run)
	}
	got := runs[a.Run].States
	if !reflect.DeepEqual(a.States, got) {
		return &AssertionError{
			Type:     AssertStateOrder,
			Expected: fmt.Sprintf("run %d states %v", a.Run, a.States),
			Actual:   fmt.Sprintf("run %d states %v", a.Run, got),
		}
	}
	return nil
}

// assertEffectCount counts released effects with a tag across all runs.
func assertEffectCount(runs []RunRecord, a Assertion) error {
	count := 0
	for _, run := range runs {
		for _, fx := range run.Effects {
			if fx.Tag == a.Tag {
				count++
			}
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEffectCount,
			Expected: fmt.Sprintf("%d %%%s effects", a.Count, a.Tag),
			Actual:   fmt.Sprintf("%d %%%s effects", count, a.Tag),
		}
	}
	return nil
}

// assertEventCount counts logged events with a tag.
func assertEventCount(events []LoggedEvent, a Assertion) error {
	count := 0
	for _, ev := range events {
		if ev.Tag == a.Tag {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %%%s events", a.Count, a.Tag),
			Actual:   fmt.Sprintf("%d %%%s events", count, a.Tag),
		}
	}
	return nil
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

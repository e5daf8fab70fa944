// Package harness runs pier conformance scenarios.
//
// A scenario boots a fresh pier with the real engine, log and drivers,
// feeds it events across one or more runs, and checks what happened:
// the state transitions of each run, the effects released, the facts
// left in the log and values peeked from the namespace at the end.
//
// # Scenario Format
//
//	name: put_and_restart
//	description: "Events survive a restart"
//	who: "~zod"
//	fake: true
//	backend: sqlite
//	runs:
//	  - events:
//	      - {wire: [test], tag: put, data: {key: a, value: 1}}
//	  - events:
//	      - {wire: [test], tag: put, data: {key: b, value: 2}}
//	    expect:
//	      exit_code: 0
//	peek: [a, b]
//	assertions:
//	  - type: namespace
//	    key: a
//	    value: 1
//	  - type: state_order
//	    run: 1
//	    states: [wyrd, work, done]
//
// Each run opens the same pier directory again. The first run boots it
// from the scenario's pill, or the built-in one. A run exits once every
// injected event has completed, or as soon as the pier is live if it has
// none. Keys listed under peek are read before the last run exits.
//
// # Assertion Types
//
//   - namespace: a peeked key holds value, or is absent if value is omitted
//   - state_order: the states a run passed through, exactly
//   - effect_count: effects with tag released across all runs
//   - event_count: logged events with tag
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of a Result's trace with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

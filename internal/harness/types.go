package harness

import "github.com/roach88/vere/internal/ir"

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Runs records each session in order.
	Runs []RunRecord `json:"runs"`

	// Events is the log as it stood after the last run.
	Events []LoggedEvent `json:"events"`

	// Namespace holds the keys peeked before the last run exited.
	Namespace ir.Map `json:"namespace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// RunRecord is what one session of the pier did.
type RunRecord struct {
	// States are the transitions made, in order. The initial state is
	// not a transition.
	States []string `json:"states"`

	// Effects are every effect released to the drivers, in order.
	Effects []EffectRecord `json:"effects"`

	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// EffectRecord identifies a released effect.
type EffectRecord struct {
	Wire string `json:"wire"`
	Tag  string `json:"tag"`
}

// LoggedEvent identifies a fact in the log.
type LoggedEvent struct {
	Eve     uint64 `json:"eve"`
	Formula bool   `json:"formula,omitempty"`
	Wire    string `json:"wire,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Runs:      []RunRecord{},
		Events:    []LoggedEvent{},
		Namespace: ir.Map{},
		Errors:    []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package pier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/vere/internal/ir"
)

// PierError is a terminal failure of a pier.
//
// Categories:
//   - Immediate (bail): log read/write failure, replay failure, broken invariant,
//     double-boot conflict. Engine, log and drivers are torn down at once.
//   - Graceful: version negotiation failure. The pier drains to DONE.
//
// Checksum mismatches are only errors in strict mode; otherwise they are logged.
type PierError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Eve is the event number involved, 0 if none.
	Eve uint64

	// Trace is the engine's trace for the failure, if any.
	Trace []string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes pier failures.
type ErrorCode string

const (
	// ErrCodeLogRead indicates the durable log failed a read.
	ErrCodeLogRead ErrorCode = "LOG_READ_FAILED"

	// ErrCodeLogWrite indicates the durable log failed a write.
	ErrCodeLogWrite ErrorCode = "LOG_WRITE_FAILED"

	// ErrCodePlay indicates the engine failed to replay a fact.
	ErrCodePlay ErrorCode = "PLAY_FAILED"

	// ErrCodeWyrd indicates the engine rejected the version negotiation event.
	ErrCodeWyrd ErrorCode = "WYRD_FAILED"

	// ErrCodeVersion indicates the kernel asserted an incompatible version.
	ErrCodeVersion ErrorCode = "VERSION_MISMATCH"

	// ErrCodeInvariant indicates a precondition of the state machine did not hold.
	ErrCodeInvariant ErrorCode = "INVARIANT_VIOLATED"

	// ErrCodeDoubleBoot indicates another live copy of this ship exists.
	ErrCodeDoubleBoot ErrorCode = "DOUBLE_BOOT"

	// ErrCodeChecksum indicates a replayed mug differs from the logged one.
	ErrCodeChecksum ErrorCode = "CHECKSUM_MISMATCH"

	// ErrCodeEngine indicates the engine failed outside replay (save, cram, start).
	ErrCodeEngine ErrorCode = "ENGINE_FAILED"
)

// Error implements the error interface.
func (e *PierError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Eve != 0 {
		fmt.Fprintf(&b, " (eve=%d)", e.Eve)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PierError) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of a wrapped PierError, or "".
func CodeOf(err error) ErrorCode {
	var pe *PierError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsInvariantError returns true if err reports a broken state machine invariant.
func IsInvariantError(err error) bool {
	return CodeOf(err) == ErrCodeInvariant
}

// IsVersionError returns true if err is a failed version negotiation,
// whether rejected by the engine or by the runtime's downgrade check.
func IsVersionError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeVersion || code == ErrCodeWyrd
}

// NewInvariantError creates a PierError for a violated precondition.
func NewInvariantError(format string, args ...any) *PierError {
	return &PierError{
		Code:    ErrCodeInvariant,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewLogError creates a PierError for a log read or write failure.
func NewLogError(code ErrorCode, eve uint64, err error) *PierError {
	op := "write"
	if code == ErrCodeLogRead {
		op = "read"
	}
	return &PierError{
		Code:    code,
		Message: "durable log " + op + " failed",
		Eve:     eve,
		Err:     err,
	}
}

// Goof is an engine-side failure: the event that failed, the mug the engine
// was at, and the engine's trace.
//
// For replay, Eve is the last event that computed successfully.
// For work, Eve is the event that was rejected.
type Goof struct {
	Eve    uint64
	Mug    uint32
	Mote   string // short failure class, e.g. "exit", "meme"
	Trace  []string
	Reason string
}

// Error implements the error interface.
func (g *Goof) Error() string {
	if g.Reason == "" {
		return fmt.Sprintf("%%%s at %d", g.Mote, g.Eve)
	}
	return fmt.Sprintf("%%%s at %d: %s", g.Mote, g.Eve, g.Reason)
}

// PeekError is a failed namespace query, labelled with the ID of the
// request that asked it.
type PeekError struct {
	ID   string
	Path ir.Path
	Err  error
}

func (e *PeekError) Error() string {
	return fmt.Sprintf("peek %s %s: %v", e.ID, e.Path, e.Err)
}

func (e *PeekError) Unwrap() error { return e.Err }

// PeekID returns the request ID carried by err, if any.
func PeekID(err error) string {
	var pe *PeekError
	if errors.As(err, &pe) {
		return pe.ID
	}
	return ""
}

// goofTrace extracts the trace from err if it is a Goof.
func goofTrace(err error) []string {
	var g *Goof
	if errors.As(err, &g) {
		return g.Trace
	}
	return nil
}

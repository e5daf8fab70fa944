package ir

import (
	"strings"
	"time"
)

// Wire is the path that routes an event back to the driver that produced it.
// The first segment names the driver.
type Wire []string

// Driver returns the first segment, or "" for an empty wire.
func (w Wire) Driver() string {
	if len(w) == 0 {
		return ""
	}
	return w[0]
}

// String renders the wire as "/a/b/c".
func (w Wire) String() string {
	return "/" + strings.Join(w, "/")
}

// Card is a tagged payload: the verb of an event or an effect.
type Card struct {
	Tag  string
	Data Value // nil when the card carries no payload
}

// Event is one input to the engine. Time is zero until the work pipeline
// stamps it at submission.
type Event struct {
	Wire Wire
	Card Card
	Time int64 // unix nanoseconds
}

// Stamped returns a copy of e carrying t.
func (e Event) Stamped(t time.Time) Event {
	e.Time = t.UnixNano()
	return e
}

// Fact is one durably loggable unit.
//
// Lifecycle facts (the first lifecycle_length events of a pier) carry a raw
// Formula instead of an Event.
type Fact struct {
	Eve     uint64
	Mug     uint32 // 0 when no checksum is recorded
	Event   Event
	Formula Value
}

// IsLifecycle reports whether f is a boot formula.
func (f Fact) IsLifecycle() bool {
	return f.Formula != nil
}

// Effect is one output action produced by computing an event.
type Effect struct {
	Wire Wire
	Card Card
}

// Gift is the effect batch produced by computing event Eve.
type Gift struct {
	Eve     uint64
	Effects []Effect
}

// Path is a namespace path for a peek, e.g. ["x", "counter"].
type Path []string

// String renders the path as "/a/b".
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// ParsePath splits "/a/b" into ["a", "b"]. Empty segments are dropped.
func ParsePath(s string) Path {
	var out Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Peek is a read-only namespace query. Ship optionally injects the
// identity to scry as.
type Peek struct {
	ID   string
	Path Path
	Ship string
}

// Kelvin is one named component version in a compatibility vector.
type Kelvin struct {
	Name    string
	Version int64
}

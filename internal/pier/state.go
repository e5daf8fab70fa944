package pier

// State is the lifecycle state of a pier.
type State int

const (
	// StateInit waits for the engine to come up on an existing pier.
	StateInit State = iota + 1
	// StateBoot commits the boot sequence of a fresh pier.
	StateBoot
	// StatePlay replays the durable log into the engine.
	StatePlay
	// StateWyrd negotiates kernel version compatibility.
	StateWyrd
	// StateWork processes new events.
	StateWork
	// StateDone is terminal; a graceful exit may still be draining.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBoot:
		return "boot"
	case StatePlay:
		return "play"
	case StateWyrd:
		return "wyrd"
	case StateWork:
		return "work"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

package pier

import (
	"fmt"
	"io"
	"sync"
)

// Status is a point-in-time summary of a pier.
type Status struct {
	State     string `json:"state"`
	Who       string `json:"who"`
	Fake      bool   `json:"fake"`
	Lifecycle uint64 `json:"lifecycle"`
	Live      bool   `json:"live"`

	EngineEve   uint64 `json:"engine_eve"`
	EngineMug   uint32 `json:"engine_mug"`
	EngineDepth int    `json:"engine_depth"`
	Durable     uint64 `json:"durable"`
	Pending     uint64 `json:"pending"`

	ReplayTarget uint64 `json:"replay_target,omitempty"`
	ReplaySent   uint64 `json:"replay_sent,omitempty"`
	ReplayRead   uint64 `json:"replay_read,omitempty"`
	ReplayQueued int    `json:"replay_queued,omitempty"`

	GiftsPending  int    `json:"gifts_pending"`
	Released      uint64 `json:"released"`
	Barriers      int    `json:"barriers"`
	BarrierTarget uint64 `json:"barrier_target,omitempty"`
	PeeksPending  int    `json:"peeks_pending"`

	ExitCode int `json:"exit_code"`
}

// statusCell hands the reactor's latest Status to other goroutines.
type statusCell struct {
	mu sync.Mutex
	s  Status
}

func (c *statusCell) store(s Status) {
	c.mu.Lock()
	c.s = s
	c.mu.Unlock()
}

func (c *statusCell) load() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Info returns the status as of the last reactor iteration. Safe from any
// goroutine.
func (p *Pier) Info() Status {
	return p.status.load()
}

// publish snapshots the pier's queues. Runs on the reactor goroutine.
func (p *Pier) publish() {
	s := Status{
		State:        p.state.String(),
		Who:          p.who,
		Fake:         p.fake,
		Lifecycle:    p.lifecycle,
		Live:         p.live,
		EngineEve:    p.eng.Eve(),
		EngineMug:    p.eng.Mug(),
		EngineDepth:  p.eng.Depth(),
		Durable:      p.disk.Durable(),
		Pending:      p.disk.Pending(),
		PeeksPending: p.peeks.Len(),
		ExitCode:     p.exitCode,
	}

	if pl, ok := p.ph.(*playPhase); ok {
		s.ReplayTarget = pl.target
		s.ReplaySent = pl.sent
		s.ReplayRead = pl.req
		s.ReplayQueued = pl.pending.len()
	}

	if w := p.work; w != nil {
		s.GiftsPending = w.gifts.Len()
		s.Released = w.gifts.Released()
		s.Barriers = w.barriers.Len()
		if head, ok := w.barriers.Head(); ok {
			s.BarrierTarget = head.Target
		}
	}

	p.status.store(s)
}

type field struct {
	k string
	v any
}

// WriteText renders s as aligned "key: value" lines.
func (s Status) WriteText(w io.Writer) error {
	fields := []field{
		{"state", s.State},
		{"who", s.Who},
		{"fake", s.Fake},
		{"lifecycle", s.Lifecycle},
		{"live", s.Live},
		{"engine eve", s.EngineEve},
		{"engine mug", fmt.Sprintf("%x", s.EngineMug)},
		{"engine depth", s.EngineDepth},
		{"durable", s.Durable},
		{"pending", s.Pending},
	}
	if s.ReplayTarget != 0 {
		fields = append(fields,
			field{"replay target", s.ReplayTarget},
			field{"replay sent", s.ReplaySent},
			field{"replay read", s.ReplayRead},
		)
	}
	fields = append(fields,
		field{"gifts pending", s.GiftsPending},
		field{"released", s.Released},
		field{"barriers", s.Barriers},
		field{"peeks pending", s.PeeksPending},
	)

	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%-14s %v\n", f.k+":", f.v); err != nil {
			return err
		}
	}
	return nil
}

package testutil

import (
	"errors"
	"fmt"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// RequestKind names an Engine operation.
type RequestKind string

const (
	KindWork RequestKind = "work"
	KindPeek RequestKind = "peek"
	KindPlay RequestKind = "play"
	KindSave RequestKind = "save"
	KindCram RequestKind = "cram"
)

// EngineRequest is one call made to ManualEngine.
type EngineRequest struct {
	Kind  RequestKind
	Event ir.Event
	Facts []ir.Fact
	Query ir.Peek

	work  func(pier.WorkResult, error)
	peek  func(ir.Value, error)
	play  func(uint32, error)
	plain func(error)
}

// ManualEngine is a pier.Engine whose requests complete only when the test
// says so, in submission order.
//
// Work results advance Eve by one and chain the mug over the event number.
// Depth drops inside the posted completion, just before the pier sees it.
//
// Not safe for concurrent use: drive the reactor with Reactor.Turn.
type ManualEngine struct {
	// Auto completes every request successfully as soon as it arrives.
	Auto bool

	// StartErr fails Start.
	StartErr error

	// Effects computes the effects of a work event. Nil means none.
	Effects func(ev ir.Event) []ir.Effect

	// PlayMug overrides the mug reported after a replay batch.
	PlayMug func(last ir.Fact) uint32

	// Values answers peeks by path string, e.g. "/x/counter".
	Values map[string]ir.Value

	poster   pier.Poster
	eve      uint64
	mug      uint32
	depth    int
	queue    []*EngineRequest
	history  []*EngineRequest
	halted   bool
	exitDone func()
	exited   bool
	starts   int
}

// NewManualEngine creates an engine whose last snapshot is at eve.
func NewManualEngine(poster pier.Poster, eve uint64) *ManualEngine {
	return &ManualEngine{
		poster: poster,
		eve:    eve,
		mug:    ir.Mug(0, []byte(fmt.Sprint(eve))),
		Values: map[string]ir.Value{},
	}
}

func (e *ManualEngine) Start(done func(error)) {
	e.starts++
	err := e.StartErr
	e.poster.Post(func() { done(err) })
}

func (e *ManualEngine) Eve() uint64 { return e.eve }
func (e *ManualEngine) Mug() uint32 { return e.mug }
func (e *ManualEngine) Depth() int  { return e.depth }

func (e *ManualEngine) Work(ev ir.Event, done func(pier.WorkResult, error)) {
	e.submit(&EngineRequest{Kind: KindWork, Event: ev, work: done})
}

func (e *ManualEngine) Peek(q ir.Peek, done func(ir.Value, error)) {
	e.submit(&EngineRequest{Kind: KindPeek, Query: q, peek: done})
}

func (e *ManualEngine) Play(facts []ir.Fact, done func(uint32, error)) {
	e.submit(&EngineRequest{Kind: KindPlay, Facts: facts, play: done})
}

func (e *ManualEngine) Save(done func(error)) {
	e.submit(&EngineRequest{Kind: KindSave, plain: done})
}

func (e *ManualEngine) Cram(done func(error)) {
	e.submit(&EngineRequest{Kind: KindCram, plain: done})
}

func (e *ManualEngine) Halt() {
	e.halted = true
	e.queue = nil
	e.depth = 0
}

func (e *ManualEngine) Exit(done func()) {
	if e.depth == 0 {
		e.exited = true
		e.poster.Post(done)
		return
	}
	e.exitDone = done
}

func (e *ManualEngine) submit(r *EngineRequest) {
	if e.halted {
		return
	}
	e.depth++
	e.queue = append(e.queue, r)
	e.history = append(e.history, r)
	if e.Auto {
		e.Finish(-1)
	}
}

// Finish completes the oldest n outstanding requests successfully, or all
// of them if n < 0. It returns how many completions were posted.
func (e *ManualEngine) Finish(n int) int {
	if n < 0 || n > len(e.queue) {
		n = len(e.queue)
	}
	for i := 0; i < n; i++ {
		r := e.queue[0]
		e.queue = e.queue[1:]
		e.poster.Post(func() { e.complete(r, nil) })
	}
	return n
}

// Fail completes the oldest outstanding request with err.
func (e *ManualEngine) Fail(err error) bool {
	if len(e.queue) == 0 {
		return false
	}
	r := e.queue[0]
	e.queue = e.queue[1:]
	e.poster.Post(func() { e.complete(r, err) })
	return true
}

func (e *ManualEngine) complete(r *EngineRequest, err error) {
	if e.halted {
		return
	}
	e.depth--

	switch r.Kind {
	case KindWork:
		if err != nil {
			r.work(pier.WorkResult{}, err)
			break
		}
		e.eve++
		e.mug = ir.Mug(e.mug, []byte(fmt.Sprint(e.eve)))
		var fx []ir.Effect
		if e.Effects != nil {
			fx = e.Effects(r.Event)
		}
		r.work(pier.WorkResult{Event: r.Event, Eve: e.eve, Mug: e.mug, Effects: fx}, nil)

	case KindPeek:
		if err != nil {
			r.peek(nil, err)
			break
		}
		r.peek(e.Values[r.Query.Path.String()], nil)

	case KindPlay:
		if err != nil {
			var g *pier.Goof
			if errors.As(err, &g) && g.Eve >= r.Facts[0].Eve {
				e.eve = g.Eve
			}
			r.play(0, err)
			break
		}
		last := r.Facts[len(r.Facts)-1]
		e.eve = last.Eve
		switch {
		case e.PlayMug != nil:
			e.mug = e.PlayMug(last)
		case last.Mug != 0:
			e.mug = last.Mug
		default:
			e.mug = ir.Mug(e.mug, []byte(fmt.Sprint(e.eve)))
		}
		r.play(e.mug, nil)

	case KindSave, KindCram:
		r.plain(err)
	}

	if e.exitDone != nil && e.depth == 0 {
		done := e.exitDone
		e.exitDone = nil
		e.exited = true
		done()
	}
}

// Outstanding returns the requests not yet finished, oldest first.
func (e *ManualEngine) Outstanding() []*EngineRequest {
	return append([]*EngineRequest(nil), e.queue...)
}

// History returns every request ever submitted, oldest first.
func (e *ManualEngine) History() []*EngineRequest {
	return append([]*EngineRequest(nil), e.history...)
}

// Kinds returns the kinds of every request ever submitted.
func (e *ManualEngine) Kinds() []RequestKind {
	out := make([]RequestKind, len(e.history))
	for i, r := range e.history {
		out[i] = r.Kind
	}
	return out
}

// Count returns how many requests of kind were ever submitted.
func (e *ManualEngine) Count(kind RequestKind) int {
	n := 0
	for _, r := range e.history {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (e *ManualEngine) Halted() bool { return e.halted }
func (e *ManualEngine) Exited() bool { return e.exited }
func (e *ManualEngine) Starts() int  { return e.starts }

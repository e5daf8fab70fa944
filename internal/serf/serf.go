package serf

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// ErrStopped is reported for requests made after Halt or Exit.
var ErrStopped = errors.New("serf stopped")

// Options configures a Serf.
type Options struct {
	// Dir is the pier directory. Empty keeps snapshots in memory only.
	Dir string

	// Kernel is the kelvin vector the kernel runs. Nil means ir.Kelvins.
	Kernel []ir.Kelvin

	// BootRecord answers the ["boot"] peek. Nil means no record.
	BootRecord ir.Value
}

type kind int

const (
	kindStart kind = iota
	kindWork
	kindPeek
	kindPlay
	kindSave
	kindCram
	kindExit
)

type request struct {
	kind  kind
	event ir.Event
	facts []ir.Fact
	query ir.Peek

	start func(error)
	work  func(pier.WorkResult, error)
	peek  func(ir.Value, error)
	play  func(uint32, error)
	plain func(error)
	exit  func()
}

var _ pier.Engine = (*Serf)(nil)

// Serf is an in-process engine.
//
// Thread-safety model:
//   - every pier.Engine method: reactor goroutine only
//   - computation: the worker goroutine started by Start
type Serf struct {
	opts   Options
	poster pier.Poster

	// reactor view
	eve   uint64
	mug   uint32
	depth int

	queue   *requestQueue
	halted  atomic.Bool
	started bool
	wg      sync.WaitGroup

	// worker-owned
	st *state
}

// New creates a Serf posting completions through poster.
func New(poster pier.Poster, opts Options) *Serf {
	if opts.Kernel == nil {
		opts.Kernel = ir.Kelvins
	}
	return &Serf{
		opts:   opts,
		poster: poster,
		queue:  newRequestQueue(),
	}
}

func (s *Serf) Eve() uint64 { return s.eve }
func (s *Serf) Mug() uint32 { return s.mug }
func (s *Serf) Depth() int  { return s.depth }

// Start launches the worker and loads the last snapshot.
func (s *Serf) Start(done func(error)) {
	if s.started {
		s.poster.Post(func() { done(errors.New("serf already started")) })
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.loop()
	s.submit(&request{kind: kindStart, start: done})
}

func (s *Serf) Work(ev ir.Event, done func(pier.WorkResult, error)) {
	s.submit(&request{kind: kindWork, event: ev, work: done})
}

func (s *Serf) Peek(q ir.Peek, done func(ir.Value, error)) {
	s.submit(&request{kind: kindPeek, query: q, peek: done})
}

func (s *Serf) Play(facts []ir.Fact, done func(uint32, error)) {
	s.submit(&request{kind: kindPlay, facts: facts, play: done})
}

func (s *Serf) Save(done func(error)) {
	s.submit(&request{kind: kindSave, plain: done})
}

func (s *Serf) Cram(done func(error)) {
	s.submit(&request{kind: kindCram, plain: done})
}

// Halt drops every outstanding request and stops the worker at once.
func (s *Serf) Halt() {
	s.halted.Store(true)
	s.depth = 0
	s.queue.close()
}

// Exit stops the worker once every earlier request has completed.
func (s *Serf) Exit(done func()) {
	if !s.started || s.halted.Load() {
		s.poster.Post(done)
		return
	}
	s.queue.enqueue(&request{kind: kindExit, exit: done})
	s.queue.close()
}

// Wait blocks until the worker goroutine has returned.
func (s *Serf) Wait() {
	s.wg.Wait()
}

func (s *Serf) submit(r *request) {
	if s.halted.Load() || !s.queue.enqueue(r) {
		s.reply(r, ErrStopped)
		return
	}
	if r.kind != kindStart {
		s.depth++
	}
}

// reply posts an immediate failure for a request that never ran.
func (s *Serf) reply(r *request, err error) {
	s.poster.Post(func() { s.fail(r, err) })
}

func (s *Serf) fail(r *request, err error) {
	switch r.kind {
	case kindStart:
		r.start(err)
	case kindWork:
		r.work(pier.WorkResult{}, err)
	case kindPeek:
		r.peek(nil, err)
	case kindPlay:
		r.play(0, err)
	case kindSave, kindCram:
		r.plain(err)
	}
}

// complete posts fn to the reactor, settling depth and position first.
func (s *Serf) complete(counted bool, eve uint64, mug uint32, fn func()) {
	s.poster.Post(func() {
		if s.halted.Load() {
			return
		}
		if counted {
			s.depth--
		}
		s.eve = eve
		s.mug = mug
		fn()
	})
}

func (s *Serf) loop() {
	defer s.wg.Done()

	for {
		r, ok := s.queue.dequeue()
		if !ok || s.halted.Load() {
			return
		}
		if r.kind == kindExit {
			slog.Debug("serf exit", "eve", s.st.eve)
			s.poster.Post(r.exit)
			return
		}
		s.run(r)
	}
}

func (s *Serf) run(r *request) {
	if s.st == nil && r.kind != kindStart {
		s.complete(true, 0, 0, func() { s.fail(r, ErrStopped) })
		return
	}

	switch r.kind {
	case kindStart:
		st, err := s.startState()
		if err != nil {
			s.poster.Post(func() { r.start(err) })
			return
		}
		s.st = st
		slog.Debug("serf started", "eve", st.eve)
		s.complete(false, st.eve, st.mug, func() { r.start(nil) })

	case kindWork:
		st := s.st
		f := ir.Fact{Eve: st.eve + 1, Event: r.event}
		fx, err := st.apply(f, s.opts.Kernel)
		if err != nil {
			s.complete(true, st.eve, st.mug, func() { r.work(pier.WorkResult{}, err) })
			return
		}
		res := pier.WorkResult{Event: r.event, Eve: st.eve, Mug: st.mug, Effects: fx}
		s.complete(true, st.eve, st.mug, func() { r.work(res, nil) })

	case kindPeek:
		v, err := s.st.peek(r.query.Path, s.opts.BootRecord)
		if err != nil {
			err = &pier.PeekError{ID: r.query.ID, Path: r.query.Path, Err: err}
		}
		slog.Debug("serf peek", "peek", r.query.ID, "path", r.query.Path.String())
		s.complete(true, s.st.eve, s.st.mug, func() { r.peek(v, err) })

	case kindPlay:
		st := s.st
		for _, f := range r.facts {
			if _, err := st.apply(f, s.opts.Kernel); err != nil {
				var g *pier.Goof
				if errors.As(err, &g) {
					g.Eve = st.eve
					g.Mug = st.mug
				}
				s.complete(true, st.eve, st.mug, func() { r.play(0, err) })
				return
			}
		}
		mug := st.mug
		s.complete(true, st.eve, mug, func() { r.play(mug, nil) })

	case kindSave:
		err := s.persist(save)
		s.complete(true, s.st.eve, s.st.mug, func() { r.plain(err) })

	case kindCram:
		err := s.persist(cram)
		s.complete(true, s.st.eve, s.st.mug, func() { r.plain(err) })
	}
}

func (s *Serf) startState() (*state, error) {
	if s.opts.Dir == "" {
		return newState(), nil
	}
	return load(s.opts.Dir)
}

func (s *Serf) persist(write func(string, *state) error) error {
	if s.opts.Dir == "" {
		return nil
	}
	return write(s.opts.Dir, s.st)
}

package pier

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hooks are the three per-iteration callbacks of a Reactor.
type Hooks struct {
	Pre  func() // before posted completions run
	Post func() // after posted completions run
	Idle func() // instead of blocking, when Wake was called
}

// inbox is a thread-safe FIFO of posted functions.
//
// Collaborator goroutines enqueue; the Reactor's Run loop drains.
// A buffered signal channel of size 1 coalesces wakeups so Run can wait
// with select and still honor context cancellation.
type inbox struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		fns:    make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

func (in *inbox) enqueue(fn func()) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return false
	}
	in.fns = append(in.fns, fn)
	in.notify()
	return true
}

// notify must be called with mu held.
func (in *inbox) notify() {
	select {
	case in.signal <- struct{}{}:
	default:
	}
}

// swap takes every queued function, leaving the inbox empty.
func (in *inbox) swap() []func() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.fns) == 0 {
		return nil
	}
	fns := in.fns
	in.fns = make([]func(), 0, cap(fns))
	return fns
}

func (in *inbox) done() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed && len(in.fns) == 0
}

func (in *inbox) close() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return
	}
	in.closed = true
	close(in.signal)
}

func (in *inbox) wake() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.notify()
	}
}

// Reactor is the single goroutine on which a pier runs.
//
// Thread-safety model:
//   - Post, Wake, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Hooks and posted functions all run on the Run goroutine
type Reactor struct {
	in    *inbox
	hooks Hooks
	idle  atomic.Bool
}

// NewReactor creates a reactor with no hooks installed.
func NewReactor() *Reactor {
	return &Reactor{in: newInbox()}
}

// SetHooks installs the per-iteration hooks. Call before Run.
func (r *Reactor) SetHooks(h Hooks) {
	r.hooks = h
}

// Post schedules fn on the reactor goroutine.
// Returns false if the reactor has been stopped.
func (r *Reactor) Post(fn func()) bool {
	return r.in.enqueue(fn)
}

// Wake arms the idle hook so the next iteration runs it instead of blocking.
func (r *Reactor) Wake() {
	r.idle.Store(true)
	r.in.wake()
}

// Stop makes Run return once already-posted functions have run.
func (r *Reactor) Stop() {
	r.in.close()
}

// Turn runs one iteration without blocking: pre hook, every posted
// function in order, post hook, then the idle hook if Wake was called.
// It returns false once the reactor has stopped and nothing is left to run.
func (r *Reactor) Turn() bool {
	if r.hooks.Pre != nil {
		r.hooks.Pre()
	}

	for _, fn := range r.in.swap() {
		fn()
	}

	if r.hooks.Post != nil {
		r.hooks.Post()
	}

	if r.idle.Swap(false) {
		if r.hooks.Idle != nil {
			r.hooks.Idle()
		}
		r.in.wake()
	}

	return !r.in.done()
}

// Run drives the loop until Stop is called or ctx is cancelled.
//
// Each iteration is one Turn. If nothing was posted and Wake was not
// called, Run waits for the next post.
func (r *Reactor) Run(ctx context.Context) error {
	slog.Debug("reactor starting")

	for {
		if !r.Turn() {
			slog.Debug("reactor stopping: stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Debug("reactor stopping: context cancelled")
			r.in.close()
			return ctx.Err()

		case <-r.in.signal:
			// closed signal channel fires immediately; Turn reports done
			// on the next pass
		}
	}
}

package pier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/observability"
)

const (
	DefaultWorkBatch = 10
	DefaultPlayBatch = 500
	DefaultReadBatch = 1000
)

var (
	// ErrNotWorking is returned to peeks submitted outside the WORK state.
	ErrNotWorking = errors.New("pier is not processing events")

	// ErrShuttingDown completes peeks still queued at exit.
	ErrShuttingDown = errors.New("pier is shutting down")
)

// Options configures a Pier.
type Options struct {
	// Who is the ship name, e.g. "~zod".
	Who  string
	Fake bool

	// Local skips network-dependent checks.
	Local bool

	WorkBatch int
	PlayBatch int
	ReadBatch int

	// ReplayTo stops replay at this event. Zero replays the whole log.
	ReplayTo uint64

	// ExitAfterReplay exits once replay has been saved, before WYRD.
	ExitAfterReplay bool

	// StrictChecksum makes a replay mug mismatch fatal.
	StrictChecksum bool

	// Scry, if set, is peeked once WORK starts; the pier then exits.
	Scry   ir.Path
	OnScry func(v ir.Value, err error)

	// Checker verifies this is the only live copy of the ship. Nil skips it.
	Checker BootChecker

	// OnLive is called once the driver chain reports live.
	OnLive func()

	// OnState is called on every state transition.
	OnState func(State)

	// Now overrides the wall clock source.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.WorkBatch <= 0 {
		o.WorkBatch = DefaultWorkBatch
	}
	if o.PlayBatch <= 0 {
		o.PlayBatch = DefaultPlayBatch
	}
	if o.ReadBatch <= 0 {
		o.ReadBatch = DefaultReadBatch
	}
}

// phase is the behavior of one lifecycle state.
type phase interface {
	// advance runs in the reactor's post and idle hooks.
	advance()
	// dispose abandons the phase; its outstanding completions become no-ops.
	dispose()
}

type checkState int

const (
	checkNone checkState = iota
	checkRunning
	checkPassed
)

// Pier is the control plane of one ship.
//
// All methods except Info must be called on the reactor goroutine, or
// before Run starts.
type Pier struct {
	opts Options

	who       string
	fake      bool
	lifecycle uint64

	rx    *Reactor
	disk  Log
	eng   Engine
	drv   DriverChain
	clock *WallClock
	peeks *PeekQueue

	state State
	ph    phase
	work  *workPhase

	ctx    context.Context
	cancel context.CancelFunc

	engineLive  bool
	drvStarted  bool
	live        bool
	check       checkState
	wyrdPending bool
	exited      bool

	exitCode int
	err      error

	status statusCell
}

// New creates a pier in INIT and installs its hooks on rx.
func New(rx *Reactor, disk Log, eng Engine, drv DriverChain, opts Options) *Pier {
	opts.setDefaults()

	p := &Pier{
		opts:  opts,
		who:   opts.Who,
		fake:  opts.Fake,
		rx:    rx,
		disk:  disk,
		eng:   eng,
		drv:   drv,
		clock: NewWallClock(opts.Now),
		state: StateInit,
	}
	p.peeks = NewPeekQueue(rx.Wake)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	rx.SetHooks(Hooks{
		Pre:  p.clock.Refresh,
		Post: p.advance,
		Idle: p.advance,
	})
	p.publish()
	return p
}

// Resume adopts the identity recorded in an existing pier.
func (p *Pier) Resume(m Meta) error {
	if p.state != StateInit {
		return NewInvariantError("resume in state %s", p.state)
	}
	p.who = m.Who
	p.fake = m.Fake
	p.lifecycle = m.Lifecycle
	return nil
}

// Start asks the engine to come up. Its completion drives the pier from
// INIT or BOOT onward once the reactor runs.
func (p *Pier) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	slog.Info("pier starting", "who", p.who, "fake", p.fake, "state", p.state, "durable", p.disk.Durable())
	p.eng.Start(p.onEngineStart)
}

// State returns the current lifecycle state.
func (p *Pier) State() State {
	return p.state
}

// Who returns the ship name.
func (p *Pier) Who() string {
	return p.who
}

// Err returns the error that ended the pier, if any.
func (p *Pier) Err() error {
	return p.err
}

// ExitCode is 0 after a clean shutdown and 1 after any fatal error.
func (p *Pier) ExitCode() int {
	return p.exitCode
}

func (p *Pier) advance() {
	if p.ph != nil {
		p.ph.advance()
	}
	p.publish()
}

// gone reports whether the pier has torn down; late completions are ignored.
func (p *Pier) gone() bool {
	return p.exited
}

func (p *Pier) setState(s State) {
	slog.Debug("pier state", "from", p.state, "to", s)
	p.state = s
	observability.SetState(s.String())
	if p.opts.OnState != nil {
		p.opts.OnState(s)
	}
}

// invariant bails with INVARIANT_VIOLATED unless cond holds.
func (p *Pier) invariant(cond bool, format string, args ...any) bool {
	if !cond {
		p.bail(NewInvariantError(format, args...))
	}
	return cond
}

func (p *Pier) onEngineStart(err error) {
	if p.gone() {
		return
	}
	if err != nil {
		p.bail(&PierError{Code: ErrCodeEngine, Message: "engine failed to start", Err: err})
		return
	}

	p.engineLive = true
	slog.Info("engine live", "eve", p.eng.Eve(), "mug", fmt.Sprintf("%x", p.eng.Mug()))

	switch p.state {
	case StateInit:
		p.resume()
	case StateBoot:
		if b, ok := p.ph.(*bootPhase); ok {
			b.maybeFinish()
		}
	case StateDone:
	default:
		p.invariant(false, "engine started in state %s", p.state)
	}
}

// resume decides, for an existing pier, whether to replay or go straight on.
func (p *Pier) resume() {
	durable := p.disk.Durable()
	eve := p.eng.Eve()

	if !p.invariant(eve <= durable, "engine at %d is ahead of the log at %d", eve, durable) {
		return
	}

	target := durable
	if til := p.opts.ReplayTo; til != 0 {
		if til > durable {
			slog.Warn("replay target beyond durable log; replaying all", "til", til, "durable", durable)
		} else {
			target = til
		}
	}

	switch {
	case eve < target:
		p.startPlay(target)
	case target < durable:
		slog.Info("engine already at replay target", "eve", eve, "til", target)
		p.cramAndExit(target, durable)
	case p.opts.ExitAfterReplay:
		slog.Info("engine already caught up", "eve", eve)
		p.Exit()
	default:
		p.startWyrd()
	}
}

func (p *Pier) startPlay(target uint64) {
	if !p.invariant(p.state == StateInit || p.state == StateBoot, "play from state %s", p.state) {
		return
	}
	if !p.invariant(target > p.eng.Eve() && target <= p.disk.Durable(),
		"play target %d outside (%d, %d]", target, p.eng.Eve(), p.disk.Durable()) {
		return
	}
	p.setState(StatePlay)
	p.ph = newPlayPhase(p, target)
}

// playDone runs when the engine has computed every replayed fact.
func (p *Pier) playDone(target uint64) {
	p.ph = nil
	durable := p.disk.Durable()

	if target < durable {
		p.cramAndExit(target, durable)
		return
	}

	slog.Info("replay done", "eve", target)
	p.eng.Save(p.onSaveDone)
	if p.opts.ExitAfterReplay {
		p.Exit()
		return
	}
	p.startWyrd()
}

// cramAndExit writes a portable snapshot at target, below the durable
// log, and exits once it is on disk.
func (p *Pier) cramAndExit(target, durable uint64) {
	slog.Info("replay target reached; writing portable snapshot", "eve", target, "durable", durable)
	p.eng.Cram(func(err error) {
		if p.gone() {
			return
		}
		if err != nil {
			p.bail(&PierError{Code: ErrCodeEngine, Message: "cram failed", Eve: target, Err: err})
			return
		}
		slog.Info("portable snapshot written", "eve", target)
		p.Exit()
	})
}

func (p *Pier) onSaveDone(err error) {
	if p.gone() {
		return
	}
	if err != nil {
		p.bail(&PierError{Code: ErrCodeEngine, Message: "snapshot failed", Eve: p.eng.Eve(), Err: err})
		return
	}
	slog.Info("snapshot saved", "eve", p.eng.Eve())
}

func (p *Pier) onCramDone(err error) {
	if p.gone() {
		return
	}
	if err != nil {
		p.bail(&PierError{Code: ErrCodeEngine, Message: "cram failed", Eve: p.eng.Eve(), Err: err})
		return
	}
	slog.Info("portable snapshot written", "eve", p.eng.Eve())
}

// startWyrd begins version negotiation, once the double-boot check passes.
func (p *Pier) startWyrd() {
	if !p.invariant(p.state == StateInit || p.state == StateBoot || p.state == StatePlay,
		"wyrd from state %s", p.state) {
		return
	}
	if p.needBootCheck() && p.check != checkPassed {
		p.wyrdPending = true
		p.ph = nil
		if p.check == checkNone {
			p.runBootCheck()
		}
		return
	}
	p.setState(StateWyrd)
	w := &wyrdPhase{p: p}
	p.ph = w
	w.start()
}

// workInit enters WORK with every already-durable event counted as released.
func (p *Pier) workInit() {
	p.setState(StateWork)
	w := newWorkPhase(p, p.disk.Durable())
	p.ph = w
	p.work = w

	if len(p.opts.Scry) > 0 {
		p.oneShotScry()
		return
	}
	p.startDrivers()
}

func (p *Pier) startDrivers() {
	if p.drvStarted {
		return
	}
	p.drvStarted = true
	p.drv.Start()
}

func (p *Pier) stopDrivers() {
	if !p.drvStarted {
		return
	}
	p.drvStarted = false
	p.drv.Teardown()
}

func (p *Pier) checkLive() {
	if p.live || !p.drvStarted || !p.drv.Live() {
		return
	}
	p.live = true
	slog.Info("pier live", "who", p.who, "eve", p.eng.Eve())
	if p.opts.OnLive != nil {
		p.opts.OnLive()
	}
}

func (p *Pier) oneShotScry() {
	q := ir.Peek{ID: uuid.NewString(), Path: p.opts.Scry}
	p.peeks.Enqueue(&PeekRequest{
		Query: q,
		Done: func(v ir.Value, err error) {
			if err != nil {
				slog.Error("scry failed", "peek", q.ID, "path", q.Path.String(), "error", err)
			}
			if p.opts.OnScry != nil {
				p.opts.OnScry(v, err)
			}
			p.Exit()
		},
	})
}

// Peek queues a namespace query. done is always invoked on the reactor
// goroutine, after Peek returns.
func (p *Pier) Peek(q ir.Peek, done func(v ir.Value, err error)) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if p.state != StateWork {
		err := ErrNotWorking
		p.rx.Post(func() { done(nil, err) })
		return
	}
	p.peeks.Enqueue(&PeekRequest{Query: q, Done: done})
}

// Save requests a snapshot. In PLAY it goes straight to the engine; in
// WORK it waits for the pipeline to go idle. Returns false otherwise.
func (p *Pier) Save() bool {
	switch p.state {
	case StatePlay:
		p.eng.Save(p.onSaveDone)
		return true
	case StateWork:
		p.work.plan("save", NextEvent, func(uint64) { p.eng.Save(p.onSaveDone) })
		return true
	default:
		return false
	}
}

// Cram requests a portable snapshot, under the same rules as Save.
func (p *Pier) Cram() bool {
	switch p.state {
	case StatePlay:
		p.eng.Cram(p.onCramDone)
		return true
	case StateWork:
		p.work.plan("cram", NextEvent, func(uint64) { p.eng.Cram(p.onCramDone) })
		return true
	default:
		return false
	}
}

// Barrier plans fire to run once event target is durable and the engine is
// idle. While it is pending no event is sent past target. Only valid in
// WORK; NextEvent as target means as soon as the pipeline drains.
func (p *Pier) Barrier(name string, target uint64, fire func(eve uint64)) bool {
	if p.state != StateWork {
		return false
	}
	p.work.plan(name, target, fire)
	return true
}

// Exit shuts the pier down gracefully.
//
// From WORK, a snapshot and the final teardown are planned as barriers so
// every in-flight event is computed, logged and released first. From any
// earlier state the active phase is abandoned and the engine drained.
func (p *Pier) Exit() {
	switch p.state {
	case StateDone:
		return
	case StateWork:
		slog.Info("pier exit requested", "eve", p.eng.Eve(), "depth", p.eng.Depth())
		w := p.work
		w.plan("save", NextEvent, func(uint64) { p.eng.Save(p.onSaveDone) })
		w.plan("exit", NextEvent, func(uint64) {
			w.close()
			p.exit()
		})
		p.setState(StateDone)
	default:
		slog.Info("pier exit requested", "state", p.state)
		if p.ph != nil {
			p.ph.dispose()
			p.ph = nil
		}
		p.wyrdPending = false
		p.setState(StateDone)
		p.exit()
	}
}

// fail ends the pier gracefully with a terminal error.
func (p *Pier) fail(err error) {
	p.exitCode = 1
	if p.err == nil {
		p.err = err
	}
	slog.Error("pier failed", "error", err)
	logTrace(err)
	p.Exit()
}

// exit drains the engine, then closes the log and stops the reactor.
func (p *Pier) exit() {
	p.peeks.Fail(ErrShuttingDown)
	p.eng.Exit(p.close)
}

func (p *Pier) close() {
	if p.exited {
		return
	}
	p.exited = true
	p.stopDrivers()
	if err := p.disk.Close(); err != nil {
		slog.Error("closing log", "error", err)
	}
	p.cancel()
	p.publish()
	slog.Info("pier exit", "who", p.who, "eve", p.eng.Eve(), "code", p.exitCode)
	p.rx.Stop()
}

// bail tears everything down synchronously after a fatal error.
func (p *Pier) bail(err error) {
	if p.exited {
		return
	}
	p.exitCode = 1
	if p.err == nil {
		p.err = err
	}
	slog.Error("pier bail", "state", p.state, "error", err)
	logTrace(err)

	p.eng.Halt()
	if p.work != nil {
		p.work.close()
	}
	if p.ph != nil {
		p.ph.dispose()
		p.ph = nil
	}
	p.wyrdPending = false
	p.peeks.Fail(err)
	p.setState(StateDone)
	p.close()
}

func logTrace(err error) {
	var pe *PierError
	if !errors.As(err, &pe) || len(pe.Trace) == 0 {
		return
	}
	slog.Error("trace:\n  " + strings.Join(pe.Trace, "\n  "))
}

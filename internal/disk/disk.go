package disk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/observability"
	"github.com/roach88/vere/internal/pier"
)

// DefaultMaxBatch is the most facts committed in one backend append.
const DefaultMaxBatch = 1000

// ErrClosed is reported to writes and reads issued after Close.
var ErrClosed = errors.New("disk closed")

// Backend is a synchronous, contiguous fact store.
//
// Implemented by store.Store (SQLite) and eventlog.Log (Pebble).
type Backend interface {
	AppendFacts(ctx context.Context, facts []ir.Fact) error
	ReadFacts(ctx context.Context, start, count uint64) ([]ir.Fact, error)
	LastEvent(ctx context.Context) (uint64, error)
	SaveMeta(ctx context.Context, m pier.Meta) error
	LoadMeta(ctx context.Context) (pier.Meta, bool, error)
	Close() error
}

type write struct {
	fact ir.Fact
	done func(uint64, error)
}

var _ pier.Log = (*Disk)(nil)

// Disk is a pier.Log over a Backend.
//
// Thread-safety model:
//   - Durable, Pending, Read, Write, Close: reactor goroutine only
//   - SaveMeta, LoadMeta: before the reactor runs
//   - the writer goroutine touches only the queue under mu
type Disk struct {
	be       Backend
	poster   pier.Poster
	maxBatch int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reactor-owned
	durable uint64
	pending uint64
	closed  bool

	mu     sync.Mutex
	queue  []write
	stop   bool
	failed error
	signal chan struct{}
}

// Option configures a Disk.
type Option func(*Disk)

// WithMaxBatch caps how many facts one commit carries.
func WithMaxBatch(n int) Option {
	return func(d *Disk) {
		if n > 0 {
			d.maxBatch = n
		}
	}
}

// Open starts a Disk over be, posting completions through poster.
func Open(be Backend, poster pier.Poster, opts ...Option) (*Disk, error) {
	ctx, cancel := context.WithCancel(context.Background())

	last, err := be.LastEvent(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open disk: %w", err)
	}

	d := &Disk{
		be:       be,
		poster:   poster,
		maxBatch: DefaultMaxBatch,
		ctx:      ctx,
		cancel:   cancel,
		durable:  last,
		pending:  last,
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.writer()

	slog.Debug("disk open", "durable", last)
	return d, nil
}

func (d *Disk) Durable() uint64 { return d.durable }
func (d *Disk) Pending() uint64 { return d.pending }

// Read fetches facts on a separate goroutine.
func (d *Disk) Read(start, count uint64, done func([]ir.Fact, error)) {
	if d.closed {
		d.poster.Post(func() { done(nil, ErrClosed) })
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		facts, err := d.be.ReadFacts(d.ctx, start, count)
		if err != nil {
			err = fmt.Errorf("read %d+%d: %w", start, count, err)
		}
		d.poster.Post(func() { done(facts, err) })
	}()
}

// Write queues f for the writer goroutine.
func (d *Disk) Write(f ir.Fact, done func(uint64, error)) {
	if d.closed {
		d.poster.Post(func() { done(f.Eve, ErrClosed) })
		return
	}
	if f.Eve != d.pending+1 {
		err := fmt.Errorf("write %d after %d: out of order", f.Eve, d.pending)
		d.poster.Post(func() { done(f.Eve, err) })
		return
	}
	d.pending = f.Eve

	d.mu.Lock()
	d.queue = append(d.queue, write{fact: f, done: done})
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Disk) SaveMeta(m pier.Meta) error {
	return d.be.SaveMeta(d.ctx, m)
}

// LoadMeta returns the saved identity. ok is false for a new pier.
func (d *Disk) LoadMeta() (pier.Meta, bool, error) {
	return d.be.LoadMeta(d.ctx)
}

// Close waits for queued writes to commit, then closes the backend.
func (d *Disk) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true

	d.mu.Lock()
	d.stop = true
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}

	d.wg.Wait()
	d.cancel()
	return d.be.Close()
}

// writer commits queued facts until Close drains the queue.
func (d *Disk) writer() {
	defer d.wg.Done()

	for {
		batch, stop := d.next()
		if len(batch) > 0 {
			d.commit(batch)
			continue
		}
		if stop {
			return
		}
		<-d.signal
	}
}

func (d *Disk) next() ([]write, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := min(len(d.queue), d.maxBatch)
	batch := make([]write, n)
	copy(batch, d.queue[:n])
	clear(d.queue[:n])
	d.queue = d.queue[n:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
	return batch, d.stop
}

func (d *Disk) commit(batch []write) {
	d.mu.Lock()
	err := d.failed
	d.mu.Unlock()

	if err == nil {
		facts := make([]ir.Fact, len(batch))
		for i, w := range batch {
			facts[i] = w.fact
		}

		start := time.Now()
		err = d.be.AppendFacts(d.ctx, facts)
		if err != nil {
			err = fmt.Errorf("commit %d-%d: %w", facts[0].Eve, facts[len(facts)-1].Eve, err)
			slog.Error("log commit failed", "from", facts[0].Eve, "to", facts[len(facts)-1].Eve, "error", err)
			d.mu.Lock()
			d.failed = err
			d.mu.Unlock()
		} else {
			observability.RecordLogCommit(len(facts), time.Since(start))
		}
	}

	for _, w := range batch {
		d.poster.Post(func() {
			if err == nil {
				d.durable = w.fact.Eve
			}
			w.done(w.fact.Eve, err)
		})
	}
}

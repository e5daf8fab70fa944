package testutil

import (
	"errors"
	"fmt"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// ErrClosed is returned by MemLog operations after Close.
var ErrClosed = errors.New("log closed")

// ReadCall is a Read awaiting completion.
type ReadCall struct {
	Start uint64
	Count uint64
	done  func([]ir.Fact, error)
}

// WriteCall is a Write awaiting durability.
type WriteCall struct {
	Fact ir.Fact
	done func(uint64, error)
}

// MemLog is an in-memory pier.Log whose completions the test controls.
//
// Reads and writes queue until ServeReads or Commit posts their
// completions. Durable advances inside the posted completion, on the
// reactor goroutine, as the pier expects. With AutoCommit or AutoRead set,
// completions are posted as soon as the request arrives.
//
// Not safe for concurrent use: drive the reactor with Reactor.Turn from
// the test goroutine.
type MemLog struct {
	AutoCommit bool
	AutoRead   bool

	// SaveMetaErr, if set, is returned by SaveMeta.
	SaveMetaErr error

	poster  pier.Poster
	facts   []ir.Fact
	pending uint64
	writes  []WriteCall
	reads   []ReadCall
	meta    *pier.Meta
	closed  bool
}

// NewMemLog creates a log already holding facts, which must be numbered
// from 1 without gaps.
func NewMemLog(poster pier.Poster, facts ...ir.Fact) *MemLog {
	for i, f := range facts {
		if f.Eve != uint64(i+1) {
			panic(fmt.Sprintf("testutil: fact %d at position %d", f.Eve, i+1))
		}
	}
	return &MemLog{
		poster:  poster,
		facts:   append([]ir.Fact(nil), facts...),
		pending: uint64(len(facts)),
	}
}

func (l *MemLog) Durable() uint64 { return uint64(len(l.facts)) }

func (l *MemLog) Pending() uint64 { return l.pending }

func (l *MemLog) Read(start, count uint64, done func([]ir.Fact, error)) {
	l.reads = append(l.reads, ReadCall{Start: start, Count: count, done: done})
	if l.AutoRead {
		l.ServeReads()
	}
}

func (l *MemLog) Write(f ir.Fact, done func(uint64, error)) {
	if f.Eve != l.pending+1 {
		panic(fmt.Sprintf("testutil: write %d after %d", f.Eve, l.pending))
	}
	l.pending = f.Eve
	l.writes = append(l.writes, WriteCall{Fact: f, done: done})
	if l.AutoCommit {
		l.Commit(-1)
	}
}

func (l *MemLog) SaveMeta(m pier.Meta) error {
	if l.SaveMetaErr != nil {
		return l.SaveMetaErr
	}
	l.meta = &m
	return nil
}

func (l *MemLog) Close() error {
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	return nil
}

// Commit makes the oldest n queued writes durable, or all of them if n < 0.
// It returns how many completions were posted.
func (l *MemLog) Commit(n int) int {
	if n < 0 || n > len(l.writes) {
		n = len(l.writes)
	}
	batch := l.writes[:n]
	l.writes = l.writes[n:]

	for _, w := range batch {
		w := w
		l.poster.Post(func() {
			l.facts = append(l.facts, w.Fact)
			w.done(w.Fact.Eve, nil)
		})
	}
	return n
}

// FailWrite fails the oldest queued write with err.
func (l *MemLog) FailWrite(err error) bool {
	if len(l.writes) == 0 {
		return false
	}
	w := l.writes[0]
	l.writes = l.writes[1:]
	l.poster.Post(func() { w.done(w.Fact.Eve, err) })
	return true
}

// ServeReads completes every queued read from the durable facts.
func (l *MemLog) ServeReads() int {
	reads := l.reads
	l.reads = nil

	for _, r := range reads {
		r := r
		l.poster.Post(func() {
			r.done(l.slice(r.Start, r.Count), nil)
		})
	}
	return len(reads)
}

// FailRead fails the oldest queued read with err.
func (l *MemLog) FailRead(err error) bool {
	if len(l.reads) == 0 {
		return false
	}
	r := l.reads[0]
	l.reads = l.reads[1:]
	l.poster.Post(func() { r.done(nil, err) })
	return true
}

func (l *MemLog) slice(start, count uint64) []ir.Fact {
	if start == 0 || start > uint64(len(l.facts)) {
		return nil
	}
	end := min(start-1+count, uint64(len(l.facts)))
	return append([]ir.Fact(nil), l.facts[start-1:end]...)
}

// Reads returns the queued reads.
func (l *MemLog) Reads() []ReadCall { return append([]ReadCall(nil), l.reads...) }

// Writes returns the writes not yet durable.
func (l *MemLog) Writes() []WriteCall { return append([]WriteCall(nil), l.writes...) }

// Facts returns every durable fact.
func (l *MemLog) Facts() []ir.Fact { return append([]ir.Fact(nil), l.facts...) }

// Meta returns the saved identity, or nil.
func (l *MemLog) Meta() *pier.Meta { return l.meta }

// Closed reports whether Close was called.
func (l *MemLog) Closed() bool { return l.closed }

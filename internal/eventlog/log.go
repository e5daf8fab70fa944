package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// RecordVersion is the on-disk record format version.
const RecordVersion = "1"

var (
	// ErrNotContiguous is returned when an append would leave a gap or
	// overwrite an existing fact.
	ErrNotContiguous = errors.New("append does not continue the log")

	// ErrCorrupt is returned when a stored record fails its checksum.
	ErrCorrupt = errors.New("corrupt record")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("event log closed")
)

// Options configures a Log.
type Options struct {
	// Dir is the Pebble database directory.
	Dir string

	// NoSync skips the WAL fsync on commit. Appends are then not durable
	// across a machine crash; use for tests and scratch piers only.
	NoSync bool

	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// Log is a fact log on Pebble.
type Log struct {
	db    *pebble.DB
	write *pebble.WriteOptions

	mu   sync.RWMutex
	last uint64
}

// Open creates or opens the log at opts.Dir and loads the highest event.
func Open(opts Options) (*Log, error) {
	if opts.Dir == "" {
		return nil, errors.New("eventlog: Options.Dir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	l := &Log{db: db, write: pebble.Sync}
	if opts.NoSync {
		l.write = pebble.NoSync
	}

	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) init() error {
	v, err := l.get(keyVersion)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		if err := l.db.Set(keyVersion, []byte(RecordVersion), pebble.Sync); err != nil {
			return fmt.Errorf("write version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	case string(v) != RecordVersion:
		return fmt.Errorf("unsupported record version %q", v)
	}

	last, err := l.get(keyLast)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read last event: %w", err)
	case len(last) != 8:
		return fmt.Errorf("last event: %w", ErrCorrupt)
	default:
		l.last = binary.BigEndian.Uint64(last)
	}
	return nil
}

// get copies the value for key.
func (l *Log) get(key []byte) ([]byte, error) {
	val, closer, err := l.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// AppendFacts commits facts as one atomic batch.
func (l *Log) AppendFacts(ctx context.Context, facts []ir.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return ErrClosed
	}

	b := l.db.NewBatch()
	defer b.Close()

	last := l.last
	for _, f := range facts {
		if f.Eve != last+1 {
			return fmt.Errorf("append fact %d after %d: %w", f.Eve, last, ErrNotContiguous)
		}
		job, err := ir.EncodeJob(f)
		if err != nil {
			return fmt.Errorf("append fact %d: %w", f.Eve, err)
		}
		if err := b.Set(keyFact(f.Eve), encodeRecord(f.Mug, job), nil); err != nil {
			return fmt.Errorf("append fact %d: %w", f.Eve, err)
		}
		last = f.Eve
	}
	if err := b.Set(keyLast, appendBE8(nil, last), nil); err != nil {
		return fmt.Errorf("append facts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Commit(l.write); err != nil {
		return fmt.Errorf("append facts: commit: %w", err)
	}
	l.last = last
	return nil
}

// ReadFacts returns up to count facts starting at start, ordered by event.
// Returns an empty slice (not nil) past the end of the log.
func (l *Log) ReadFacts(ctx context.Context, start, count uint64) ([]ir.Fact, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, ErrClosed
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFact(start),
		UpperBound: keyFact(start + count),
	})
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	defer iter.Close()

	facts := make([]ir.Fact, 0, min(count, 1024))
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eve := eveOf(iter.Key())
		mug, job, ok := decodeRecord(iter.Value())
		if !ok {
			return nil, fmt.Errorf("fact %d: %w", eve, ErrCorrupt)
		}
		f := ir.Fact{Eve: eve, Mug: mug}
		if err := ir.DecodeJob(job, &f); err != nil {
			return nil, fmt.Errorf("fact %d: %w", eve, err)
		}
		facts = append(facts, f)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	return facts, nil
}

// LastEvent returns the highest stored event, 0 for an empty log.
func (l *Log) LastEvent(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return 0, ErrClosed
	}
	return l.last, nil
}

type metaRecord struct {
	Who       string `json:"who"`
	Fake      bool   `json:"fake"`
	Lifecycle uint64 `json:"lifecycle"`
}

// SaveMeta records the pier's identity, replacing any previous one.
func (l *Log) SaveMeta(ctx context.Context, m pier.Meta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return ErrClosed
	}

	data, err := json.Marshal(metaRecord{Who: m.Who, Fake: m.Fake, Lifecycle: m.Lifecycle})
	if err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := l.db.Set(keyPier, data, pebble.Sync); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// LoadMeta returns the pier's identity. ok is false if none was saved.
func (l *Log) LoadMeta(ctx context.Context) (m pier.Meta, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return m, false, ErrClosed
	}

	data, err := l.get(keyPier)
	if errors.Is(err, pebble.ErrNotFound) {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("load meta: %w", err)
	}

	var rec metaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return m, false, fmt.Errorf("load meta: %w", err)
	}
	return pier.Meta{Who: rec.Who, Fake: rec.Fake, Lifecycle: rec.Lifecycle}, true, nil
}

// Close closes the database. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

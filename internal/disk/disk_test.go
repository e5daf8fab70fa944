package disk

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/vere/internal/eventlog"
	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fact(eve uint64) ir.Fact {
	return ir.Fact{
		Eve: eve,
		Event: ir.Event{
			Wire: ir.Wire{"inject"},
			Card: ir.Card{Tag: "put", Data: ir.Map{"key": ir.String("k"), "value": ir.Int(int64(eve))}},
			Time: int64(eve),
		},
	}
}

// spin turns rx until cond holds.
func spin(t *testing.T, rx *pier.Reactor, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		rx.Turn()
		return cond()
	}, 5*time.Second, time.Millisecond)
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	sq, err := store.Open(filepath.Join(dir, "log.db"))
	require.NoError(t, err)

	pb, err := eventlog.Open(eventlog.Options{Dir: filepath.Join(dir, "pebble"), NoSync: true})
	require.NoError(t, err)

	return map[string]Backend{"sqlite": sq, "pebble": pb}
}

func TestDisk_WriteAdvancesDurableInOrder(t *testing.T) {
	for name, be := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rx := pier.NewReactor()
			d, err := Open(be, rx, WithMaxBatch(3))
			require.NoError(t, err)

			var done []uint64
			for eve := uint64(1); eve <= 10; eve++ {
				d.Write(fact(eve), func(got uint64, err error) {
					require.NoError(t, err)
					assert.Equal(t, got, d.Durable(), "durable advances before the callback")
					done = append(done, got)
				})
			}
			assert.Equal(t, uint64(10), d.Pending())

			spin(t, rx, func() bool { return len(done) == 10 })
			assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, done)
			assert.Equal(t, uint64(10), d.Durable())

			var got []ir.Fact
			d.Read(4, 3, func(facts []ir.Fact, err error) {
				require.NoError(t, err)
				got = facts
			})
			spin(t, rx, func() bool { return got != nil })
			require.Len(t, got, 3)
			assert.Equal(t, uint64(4), got[0].Eve)

			require.NoError(t, d.Close())
		})
	}
}

func TestDisk_OpenResumesAtLastEvent(t *testing.T) {
	ctx := context.Background()
	be, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	require.NoError(t, be.AppendFacts(ctx, []ir.Fact{fact(1), fact(2)}))

	rx := pier.NewReactor()
	d, err := Open(be, rx)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, uint64(2), d.Durable())
	assert.Equal(t, uint64(2), d.Pending())
}

func TestDisk_CloseDrainsQueuedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	be, err := store.Open(path)
	require.NoError(t, err)

	rx := pier.NewReactor()
	d, err := Open(be, rx)
	require.NoError(t, err)

	for eve := uint64(1); eve <= 5; eve++ {
		d.Write(fact(eve), func(uint64, error) {})
	}
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), ErrClosed)

	be, err = store.Open(path)
	require.NoError(t, err)
	defer be.Close()
	last, err := be.LastEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestDisk_MetaPassesThrough(t *testing.T) {
	be, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)

	d, err := Open(be, pier.NewReactor())
	require.NoError(t, err)
	defer d.Close()

	_, ok, err := d.LoadMeta()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.SaveMeta(pier.Meta{Who: "~nec", Lifecycle: 3}))
	m, ok, err := d.LoadMeta()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "~nec", m.Who)
}

// flaky fails every append after the first n facts.
type flaky struct {
	mu    sync.Mutex
	facts []ir.Fact
	limit int
}

var errFull = errors.New("disk full")

func (f *flaky) AppendFacts(_ context.Context, facts []ir.Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.facts)+len(facts) > f.limit {
		return errFull
	}
	f.facts = append(f.facts, facts...)
	return nil
}

func (f *flaky) ReadFacts(_ context.Context, start, count uint64) ([]ir.Fact, error) {
	return nil, errFull
}

func (f *flaky) LastEvent(context.Context) (uint64, error)          { return 0, nil }
func (f *flaky) SaveMeta(context.Context, pier.Meta) error          { return nil }
func (f *flaky) LoadMeta(context.Context) (pier.Meta, bool, error) { return pier.Meta{}, false, nil }
func (f *flaky) Close() error                                       { return nil }

func TestDisk_CommitFailureIsSticky(t *testing.T) {
	rx := pier.NewReactor()
	d, err := Open(&flaky{limit: 1}, rx, WithMaxBatch(1))
	require.NoError(t, err)
	defer d.Close()

	errs := map[uint64]error{}
	for eve := uint64(1); eve <= 3; eve++ {
		d.Write(fact(eve), func(got uint64, err error) { errs[got] = err })
	}
	spin(t, rx, func() bool { return len(errs) == 3 })

	assert.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], errFull)
	assert.ErrorIs(t, errs[3], errFull)
	assert.Equal(t, uint64(1), d.Durable())
}

func TestDisk_ReadErrorIsPosted(t *testing.T) {
	rx := pier.NewReactor()
	d, err := Open(&flaky{}, rx)
	require.NoError(t, err)
	defer d.Close()

	var got error
	d.Read(1, 10, func(_ []ir.Fact, err error) { got = err })
	spin(t, rx, func() bool { return got != nil })
	assert.ErrorIs(t, got, errFull)
}

func TestDisk_OutOfOrderWriteFails(t *testing.T) {
	rx := pier.NewReactor()
	d, err := Open(&flaky{limit: 10}, rx)
	require.NoError(t, err)
	defer d.Close()

	var got error
	d.Write(fact(2), func(_ uint64, err error) { got = err })
	spin(t, rx, func() bool { return got != nil })
	assert.Equal(t, uint64(0), d.Pending())
}

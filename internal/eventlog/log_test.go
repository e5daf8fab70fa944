package eventlog

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

func newTestLog(t *testing.T, dir string) *Log {
	t.Helper()
	l, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testFacts(first uint64, n int) []ir.Fact {
	out := make([]ir.Fact, n)
	for i := range out {
		eve := first + uint64(i)
		out[i] = ir.Fact{
			Eve: eve,
			Mug: uint32(eve) + 100,
			Event: ir.Event{
				Wire: ir.Wire{"inject"},
				Card: ir.Card{Tag: "put", Data: ir.Map{"key": ir.String("n"), "value": ir.Int(int64(eve))}},
				Time: int64(eve),
			},
		}
	}
	return out
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t, t.TempDir())

	facts := testFacts(1, 6)
	require.NoError(t, l.AppendFacts(ctx, facts[:2]))
	require.NoError(t, l.AppendFacts(ctx, facts[2:]))

	got, err := l.ReadFacts(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, facts[1:4], got)

	got, err = l.ReadFacts(ctx, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, facts[4:], got)

	got, err = l.ReadFacts(ctx, 7, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppendRejectsGap(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t, t.TempDir())

	require.NoError(t, l.AppendFacts(ctx, testFacts(1, 2)))
	assert.ErrorIs(t, l.AppendFacts(ctx, testFacts(4, 1)), ErrNotContiguous)
	assert.ErrorIs(t, l.AppendFacts(ctx, testFacts(2, 1)), ErrNotContiguous)

	last, err := l.LastEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, l.AppendFacts(ctx, testFacts(1, 3)))
	require.NoError(t, l.SaveMeta(ctx, pier.Meta{Who: "~zod", Fake: true, Lifecycle: 2}))
	require.NoError(t, l.Close())

	l = newTestLog(t, dir)
	last, err := l.LastEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	m, ok, err := l.LoadMeta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pier.Meta{Who: "~zod", Fake: true, Lifecycle: 2}, m)

	require.NoError(t, l.AppendFacts(ctx, testFacts(4, 1)))
}

func TestLifecycleFact(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t, t.TempDir())

	f := ir.Fact{Eve: 1, Formula: ir.Map{"formula": ir.Int(9)}}
	require.NoError(t, l.AppendFacts(ctx, []ir.Fact{f}))

	got, err := l.ReadFacts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsLifecycle())
	assert.Equal(t, f.Formula, got[0].Formula)
}

func TestReadDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t, t.TempDir())
	require.NoError(t, l.AppendFacts(ctx, testFacts(1, 2)))

	require.NoError(t, l.db.Set(keyFact(2), []byte("garbage!!"), pebble.Sync))

	_, err := l.ReadFacts(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMetaMissing(t *testing.T) {
	l := newTestLog(t, t.TempDir())
	_, ok, err := l.LoadMeta(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	l, err := Open(Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.AppendFacts(ctx, testFacts(1, 1)), ErrClosed)
	_, err = l.ReadFacts(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

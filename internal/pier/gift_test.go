package pier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vere/internal/ir"
)

func TestGiftQueue_PlanRequiresConsecutiveEvents(t *testing.T) {
	gq := NewGiftQueue(10)

	require.NoError(t, gq.Plan(ir.Gift{Eve: 11}))
	require.NoError(t, gq.Plan(ir.Gift{Eve: 12}))

	assert.Error(t, gq.Plan(ir.Gift{Eve: 14}), "gap")
	assert.Error(t, gq.Plan(ir.Gift{Eve: 12}), "duplicate")
	assert.Error(t, gq.Plan(ir.Gift{Eve: 11}), "reorder")
	assert.Equal(t, 2, gq.Len())
}

func TestGiftQueue_PlanAfterReleaseUsesWatermark(t *testing.T) {
	gq := NewGiftQueue(0)
	require.NoError(t, gq.Plan(ir.Gift{Eve: 1}))
	gq.Release(1, func(ir.Gift) {})

	assert.Equal(t, uint64(1), gq.Released())
	assert.Error(t, gq.Plan(ir.Gift{Eve: 3}))
	assert.NoError(t, gq.Plan(ir.Gift{Eve: 2}))
}

func TestGiftQueue_ReleaseGatedOnDurability(t *testing.T) {
	gq := NewGiftQueue(0)
	for eve := uint64(1); eve <= 4; eve++ {
		require.NoError(t, gq.Plan(ir.Gift{Eve: eve}))
	}

	var got []uint64
	deliver := func(g ir.Gift) { got = append(got, g.Eve) }

	assert.Equal(t, 0, gq.Release(0, deliver))
	assert.Equal(t, 2, gq.Release(2, deliver))
	assert.Equal(t, []uint64{1, 2}, got)

	assert.Equal(t, 2, gq.Release(10, deliver))
	assert.Equal(t, []uint64{1, 2, 3, 4}, got)
	assert.Equal(t, uint64(4), gq.Released())
}

func TestGiftQueue_HeadBlocksLaterGifts(t *testing.T) {
	gq := NewGiftQueue(5)
	require.NoError(t, gq.Plan(ir.Gift{Eve: 6}))
	require.NoError(t, gq.Plan(ir.Gift{Eve: 7}))

	_, ok := gq.Next(5)
	assert.False(t, ok)
	assert.Equal(t, 2, gq.Len())

	first, last := gq.Bounds()
	assert.Equal(t, uint64(6), first)
	assert.Equal(t, uint64(7), last)
}

func TestGiftQueue_DropDiscardsWithoutDelivery(t *testing.T) {
	gq := NewGiftQueue(0)
	require.NoError(t, gq.Plan(ir.Gift{Eve: 1}))
	gq.Drop()

	called := false
	gq.Release(100, func(ir.Gift) { called = true })
	assert.False(t, called)
	assert.Equal(t, 0, gq.Len())

	first, last := gq.Bounds()
	assert.Zero(t, first)
	assert.Zero(t, last)
}

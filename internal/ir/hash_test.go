package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMug_Deterministic(t *testing.T) {
	a := Mug(0, []byte("hello"))
	b := Mug(0, []byte("hello"))
	assert.Equal(t, a, b)
}

func TestMug_ThirtyOneBitsNonzero(t *testing.T) {
	for i := 0; i < 256; i++ {
		m := Mug(uint32(i), []byte{byte(i)})
		assert.NotZero(t, m)
		assert.Zero(t, m&0x80000000, "high bit must be clear")
	}
}

func TestMug_ChainsOnPrevious(t *testing.T) {
	data := []byte("event")
	assert.NotEqual(t, Mug(1, data), Mug(2, data))
}

func TestFactMug_DependsOnPayload(t *testing.T) {
	f1 := Fact{Eve: 1, Event: Event{Wire: Wire{"a"}, Card: Card{Tag: "ping"}}}
	f2 := Fact{Eve: 1, Event: Event{Wire: Wire{"a"}, Card: Card{Tag: "pong"}}}

	m1, err := FactMug(7, f1)
	require.NoError(t, err)
	m2, err := FactMug(7, f2)
	require.NoError(t, err)
	assert.NotEqual(t, m1, m2)

	// event number and stored mug are not part of the payload
	f1.Eve, f1.Mug = 99, 12345
	again, err := FactMug(7, f1)
	require.NoError(t, err)
	assert.Equal(t, m1, again)
}

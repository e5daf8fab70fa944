package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJob_Event(t *testing.T) {
	f := Fact{
		Eve: 13,
		Event: Event{
			Wire: Wire{"inject", "cli"},
			Card: Card{Tag: "put", Data: Map{"key": String("k"), "value": Int(1)}},
			Time: 1000,
		},
	}

	job, err := EncodeJob(f)
	require.NoError(t, err)
	assert.Equal(t,
		`{"card":{"data":{"key":"k","value":1},"tag":"put"},"time":1000,"wire":["inject","cli"]}`,
		string(job))

	var back Fact
	require.NoError(t, DecodeJob(job, &back))
	assert.Equal(t, f.Event, back.Event)
	assert.False(t, back.IsLifecycle())
}

func TestEncodeJob_Lifecycle(t *testing.T) {
	f := Fact{Eve: 1, Formula: List{Int(2), List{Int(0), Int(3)}, List{Int(0), Int(2)}}}

	job, err := EncodeJob(f)
	require.NoError(t, err)
	assert.Equal(t, `{"formula":[2,[0,3],[0,2]]}`, string(job))

	var back Fact
	require.NoError(t, DecodeJob(job, &back))
	assert.True(t, back.IsLifecycle())
	assert.Equal(t, f.Formula, back.Formula)
}

func TestEncodeJob_NoData(t *testing.T) {
	f := Fact{Event: Event{Wire: Wire{"behn"}, Card: Card{Tag: "wake"}}}

	job, err := EncodeJob(f)
	require.NoError(t, err)
	assert.Equal(t, `{"card":{"tag":"wake"},"time":0,"wire":["behn"]}`, string(job))
}

func TestDecodeJob_Invalid(t *testing.T) {
	var f Fact
	assert.Error(t, DecodeJob([]byte(`[1,2]`), &f))
	assert.Error(t, DecodeJob([]byte(`{"time":1,"wire":[],"card":{}}`), &f))
	assert.Error(t, DecodeJob([]byte(`{"wire":[],"card":{"tag":"x"}}`), &f))
	assert.Error(t, DecodeJob([]byte(`{"time":1,"wire":[1],"card":{"tag":"x"}}`), &f))
}

func TestEventStamped(t *testing.T) {
	ev := Event{Card: Card{Tag: "ping"}}
	now := time.Unix(100, 5)

	stamped := ev.Stamped(now)
	assert.Equal(t, now.UnixNano(), stamped.Time)
	assert.Zero(t, ev.Time, "original is not mutated")
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{"x", "counter"}, ParsePath("/x/counter"))
	assert.Equal(t, Path{"x", "counter"}, ParsePath("x//counter/"))
	assert.Nil(t, ParsePath("/"))
	assert.Equal(t, "/x/counter", Path{"x", "counter"}.String())
}

func TestWire(t *testing.T) {
	assert.Equal(t, "behn", Wire{"behn", "timer"}.Driver())
	assert.Equal(t, "", Wire{}.Driver())
	assert.Equal(t, "/behn/timer", Wire{"behn", "timer"}.String())
}

func TestKelvinOf(t *testing.T) {
	v, ok := KelvinOf("zuse")
	assert.True(t, ok)
	assert.Equal(t, int64(410), v)

	_, ok = KelvinOf("nope")
	assert.False(t, ok)
}

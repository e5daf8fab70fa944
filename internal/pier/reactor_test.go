package pier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReactor_TurnRunsHooksAroundPosts(t *testing.T) {
	rx := NewReactor()
	var order []string
	rx.SetHooks(Hooks{
		Pre:  func() { order = append(order, "pre") },
		Post: func() { order = append(order, "post") },
		Idle: func() { order = append(order, "idle") },
	})

	rx.Post(func() { order = append(order, "a") })
	rx.Post(func() { order = append(order, "b") })
	assert.True(t, rx.Turn())
	assert.Equal(t, []string{"pre", "a", "b", "post"}, order)

	order = nil
	rx.Wake()
	rx.Turn()
	assert.Equal(t, []string{"pre", "post", "idle"}, order)
}

func TestReactor_PostAfterStopIsRefused(t *testing.T) {
	rx := NewReactor()
	ran := false
	require.True(t, rx.Post(func() { ran = true }))

	rx.Stop()
	assert.False(t, rx.Post(func() {}))

	// already-posted work still runs
	assert.False(t, rx.Turn())
	assert.True(t, ran)
}

func TestReactor_RunReturnsOnStop(t *testing.T) {
	rx := NewReactor()

	var mu sync.Mutex
	var got []int
	done := make(chan error, 1)
	go func() { done <- rx.Run(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rx.Post(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()
	rx.Post(rx.Stop)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 10)
}

func TestReactor_RunReturnsOnCancel(t *testing.T) {
	rx := NewReactor()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- rx.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}
	assert.False(t, rx.Post(func() {}))
}

func TestReactor_IdleHookRunsWithoutPosts(t *testing.T) {
	rx := NewReactor()
	idles := 0
	rx.SetHooks(Hooks{
		Idle: func() {
			idles++
			if idles < 3 {
				rx.Wake()
				return
			}
			rx.Stop()
		},
	})

	rx.Wake()
	require.NoError(t, rx.Run(context.Background()))
	assert.Equal(t, 3, idles)
}

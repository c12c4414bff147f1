package dashboard

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_OnlyLastFires(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var fired atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger(func(uint64) {
			fired.Add(1)
			last.Store(n)
		})
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	d.Wait()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(5), last.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Int32
	d.Trigger(func(uint64) { fired.Add(1) })
	d.Stop()
	assert.False(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	d.Wait()
	assert.Zero(t, fired.Load())

	// Stop on an idle debouncer is harmless.
	d.Stop()
}

func TestDebouncer_RetriggerAfterFire(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)

	var fired atomic.Int32
	d.Trigger(func(uint64) { fired.Add(1) })
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	d.Trigger(func(uint64) { fired.Add(1) })
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
	d.Wait()
}

func TestDebouncer_NegativeDelay(t *testing.T) {
	d := NewDebouncer(-time.Second)

	done := make(chan struct{})
	d.Trigger(func(uint64) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
	d.Wait()
}

func TestDebouncer_Current(t *testing.T) {
	d := NewDebouncer(time.Hour)

	var first, second uint64
	d.Trigger(func(uint64) {})
	d.mu.Lock()
	first = d.gen
	d.mu.Unlock()
	assert.True(t, d.Current(first))

	d.Trigger(func(uint64) {})
	assert.False(t, d.Current(first), "re-armed")
	d.mu.Lock()
	second = d.gen
	d.mu.Unlock()

	d.Stop()
	assert.False(t, d.Current(second), "stopped")
}

func TestDebouncer_PassesGeneration(t *testing.T) {
	d := NewDebouncer(time.Millisecond)

	got := make(chan bool, 1)
	d.Trigger(func(gen uint64) { got <- d.Current(gen) })
	select {
	case current := <-got:
		assert.True(t, current)
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
	d.Wait()
}

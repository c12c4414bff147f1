package dashboard

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period a filter change waits before it
// issues a fetch.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer runs the last function passed to Trigger once no new call has
// arrived for the configured delay. At most one timer is armed at a time.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	gen      uint64
	wg       sync.WaitGroup
}

// NewDebouncer creates a debouncer with the given delay. A non-positive
// delay fires on the next scheduler tick.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration < 0 {
		duration = 0
	}
	return &Debouncer{duration: duration}
}

// Trigger cancels any pending call and schedules fn. fn receives the
// generation it was armed under; see Current.
func (d *Debouncer) Trigger(fn func(gen uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen

	d.wg.Add(1)
	d.timer = time.AfterFunc(d.duration, func() {
		defer d.wg.Done()

		d.mu.Lock()
		// A Trigger or Stop that raced with the timer firing wins.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		fn(gen)
	})
}

// Current reports whether no Trigger or Stop has happened since gen was
// armed. A fired callback that blocks before acting checks it again.
func (d *Debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Pending reports whether a call is armed and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Wait blocks until every fired callback has returned.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}

func (d *Debouncer) stopLocked() {
	if d.timer == nil {
		return
	}
	if d.timer.Stop() {
		// The callback will never run, so it cannot release its slot.
		d.wg.Done()
	}
	d.timer = nil
}

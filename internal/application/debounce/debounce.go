// Package debounce delays a rapidly changing value until it has been stable
// for a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer emits the last pushed value once no further value has been
// pushed for the configured delay. Emissions are serialized.
type Debouncer[T any] struct {
	delay time.Duration
	emit  func(T)

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	pending    T
	hasPending bool
	closed     bool

	emitMu sync.Mutex // held while emit runs; Close waits on it
}

// New creates a debouncer that calls emit with the settled value.
// PRE: delay >= 0, emit is non-nil
// POST: Returns an idle debouncer with no pending value
func New[T any](delay time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, emit: emit}
}

// Push records a new raw value and restarts the quiet period.
// PRE: none
// POST: Any earlier pending value is replaced; ignored after Close
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.gen++
	d.pending = v
	d.hasPending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Take cancels the quiet period and hands the pending value to the caller
// instead of emit. ok is false when nothing is pending.
// POST: No value is pending
func (d *Debouncer[T]) Take() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.closed || !d.hasPending {
		return v, false
	}
	v, ok = d.pending, true
	var zero T
	d.pending = zero
	d.hasPending = false
	d.gen++
	return v, ok
}

// Pending reports whether a value is waiting for its quiet period to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending
}

// Close cancels any pending emission and waits for a running emit to return.
// Must not be called from inside emit.
// POST: emit is never called again
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	d.closed = true
	d.hasPending = false
	var zero T
	d.pending = zero
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.emitMu.Lock()
	d.emitMu.Unlock() //nolint:staticcheck // barrier for an in-flight emit
}

// fire emits the pending value if gen is still the latest push.
func (d *Debouncer[T]) fire(gen uint64) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.closed || gen != d.gen || !d.hasPending {
		d.mu.Unlock()
		return
	}
	v := d.pending
	var zero T
	d.pending = zero
	d.hasPending = false
	d.mu.Unlock()

	d.emit(v)
}

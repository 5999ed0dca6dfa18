package watcher

import (
	"sync"
	"time"
)

// Debouncer delays a callback until activity for a key has been quiet for the
// delay. Each Add for a pending key restarts its timer, so a burst of events
// yields one callback. The watcher keys on the watched folder, turning a burst
// of new files into one merge pass.
type Debouncer struct {
	delay    time.Duration
	pending  map[string]*time.Timer
	callback func(key string)
	mu       sync.Mutex
}

// NewDebouncer creates a new Debouncer with the specified delay and callback.
func NewDebouncer(delay time.Duration, callback func(key string)) *Debouncer {
	return &Debouncer{
		delay:    delay,
		pending:  make(map[string]*time.Timer),
		callback: callback,
	}
}

// Add schedules the callback for key after the delay, restarting the timer
// when key is already pending.
func (d *Debouncer) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.pending[key]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A later Add may have replaced this timer after it fired.
		if d.pending[key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		// The callback runs outside the lock so it may call Add.
		if d.callback != nil {
			d.callback(key)
		}
	})
	d.pending[key] = timer
}

// Cancel removes a pending key. If the key is not pending, this is a no-op.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.pending[key]; exists {
		timer.Stop()
		delete(d.pending, key)
	}
}

// CancelAll cancels every pending callback. Used during shutdown.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}

// PendingCount returns the number of keys currently pending.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// IsPending returns true if key is currently pending.
func (d *Debouncer) IsPending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.pending[key]
	return exists
}

// GetDelay returns the configured debounce delay.
func (d *Debouncer) GetDelay() time.Duration {
	return d.delay
}

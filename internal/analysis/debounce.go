package analysis

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of analysis requests (a user scrubbing
// through moves) into a single engine invocation after a quiet period.
// Only the most recent request of a burst is ever issued; the
// debouncer holds no analysis state of its own.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	start func(Request)
}

// NewDebouncer wraps start in a latest-wins coalescing filter.
func NewDebouncer(start func(Request)) *Debouncer {
	return &Debouncer{start: start}
}

// Schedule issues req after delay. A call before the delay elapses
// cancels the pending request and reschedules with the new one. A
// zero delay bypasses the timer entirely.
func (d *Debouncer) Schedule(req Request, delay time.Duration) {
	if delay <= 0 {
		d.Cancel()
		d.start(req)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, func() {
		d.start(req)
	})
}

// Cancel drops any pending request without issuing it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

package syncissues

import (
	"sync"
	"time"
)

// DeferredSingleTrigger runs the last function given to Trigger once delay
// has passed without another call.
type DeferredSingleTrigger struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
}

func NewDeferredSingleTrigger(delay time.Duration) *DeferredSingleTrigger {
	return &DeferredSingleTrigger{delay: delay}
}

func (d *DeferredSingleTrigger) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.timer == timer && !d.stopped
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
	d.timer = timer
}

// Stop cancels the pending run. Later triggers are ignored.
func (d *DeferredSingleTrigger) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

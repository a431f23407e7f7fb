package autoquit

import "sync"

// OneShot runs a callback once when a Deadline's monotonic instant is reached.
//
// Arm replaces any pending fire. Cancel is idempotent; it prevents a fire that
// has not started yet, but a fire already in flight still completes. A single
// arm never fires twice.
type OneShot struct {
	clock Clock

	mu    sync.Mutex
	gen   uint64
	stop  chan struct{}
	timer Timer
}

// NewOneShot creates an unarmed timer. A nil clock uses SystemClock.
func NewOneShot(clock Clock) *OneShot {
	if clock == nil {
		clock = SystemClock
	}
	return &OneShot{clock: clock}
}

// Arm schedules onFire for d.Mono, canceling any previous pending fire.
func (o *OneShot) Arm(d Deadline, onFire func()) {
	o.mu.Lock()
	o.cancelLocked()
	o.gen++
	gen := o.gen
	stop := make(chan struct{})
	t := o.clock.NewTimer(d.Remaining(o.clock.Now()))
	o.stop = stop
	o.timer = t
	o.mu.Unlock()

	go func() {
		select {
		case <-stop:
			return
		case <-t.C():
		}

		o.mu.Lock()
		if o.gen != gen || o.stop != stop {
			o.mu.Unlock()
			return
		}
		o.stop = nil
		o.timer = nil
		o.mu.Unlock()

		onFire()
	}()
}

// Cancel drops the pending fire, if any. It reports whether a fire was pending.
func (o *OneShot) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelLocked()
}

// Pending reports whether a fire is scheduled and has not started.
func (o *OneShot) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stop != nil
}

func (o *OneShot) cancelLocked() bool {
	if o.stop == nil {
		return false
	}
	close(o.stop)
	o.timer.Stop()
	o.stop = nil
	o.timer = nil
	return true
}

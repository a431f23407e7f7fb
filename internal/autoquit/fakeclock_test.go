package autoquit

import (
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock. Every NewTimer call is reported on
// created so tests can wait for the scheduler to re-arm before advancing.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	created chan time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, created: make(chan time.Duration, 64)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &fakeTimer{clk: c, c: make(chan time.Time, 1), at: c.now.Add(d)}
	if d <= 0 {
		t.fired = true
		t.c <- c.now
	} else {
		c.timers = append(c.timers, t)
	}
	c.mu.Unlock()

	select {
	case c.created <- d:
	default:
	}
	return t
}

// Advance moves the clock forward and fires every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if !t.at.After(c.now) {
			t.fired = true
			t.c <- c.now
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
}

type fakeTimer struct {
	clk     *fakeClock
	c       chan time.Time
	at      time.Time
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// recordingDisplay collects everything the scheduler emits.
type recordingDisplay struct {
	mu       sync.Mutex
	etas     []ETA
	ticks    []Tick
	cadences []time.Duration
	tickCh   chan Tick
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{tickCh: make(chan Tick, 256)}
}

func (d *recordingDisplay) ETAChanged(eta ETA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.etas = append(d.etas, eta)
}

func (d *recordingDisplay) Update(tick Tick) {
	d.mu.Lock()
	d.ticks = append(d.ticks, tick)
	d.mu.Unlock()
	select {
	case d.tickCh <- tick:
	default:
	}
}

func (d *recordingDisplay) CadenceChanged(cadence time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cadences = append(d.cadences, cadence)
}

func (d *recordingDisplay) Ticks() []Tick {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Tick(nil), d.ticks...)
}

func (d *recordingDisplay) Cadences() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.cadences...)
}

func (d *recordingDisplay) ETAs() []ETA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ETA(nil), d.etas...)
}

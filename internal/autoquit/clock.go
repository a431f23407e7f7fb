package autoquit

import "time"

// Timer is a stoppable pending wait.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock provides time-related operations.
// It allows tests to drive the scheduler without real sleeps.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// SystemClock is the default Clock backed by the time package. Its Now values
// carry a monotonic reading.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return stdTimer{time.NewTimer(d)}
}

type stdTimer struct {
	t *time.Timer
}

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop() bool          { return s.t.Stop() }

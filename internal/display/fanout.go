package display

import (
	"time"

	"github.com/stayawake/stay-awake/internal/autoquit"
)

// Fanout delivers every signal to each display in order.
type Fanout []autoquit.Display

// NewFanout drops nil displays.
func NewFanout(displays ...autoquit.Display) Fanout {
	out := make(Fanout, 0, len(displays))
	for _, d := range displays {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (f Fanout) ETAChanged(eta autoquit.ETA) {
	for _, d := range f {
		d.ETAChanged(eta)
	}
}

func (f Fanout) Update(tick autoquit.Tick) {
	for _, d := range f {
		d.Update(tick)
	}
}

func (f Fanout) CadenceChanged(cadence time.Duration) {
	for _, d := range f {
		d.CadenceChanged(cadence)
	}
}

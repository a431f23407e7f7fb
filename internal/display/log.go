package display

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/stayawake/stay-awake/internal/autoquit"
)

// Log reports the countdown as structured log lines, for when no terminal
// is attached. ETA and cadence changes log at info, ticks at debug.
type Log struct {
	log *slog.Logger
}

// NewLog creates a log display. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "countdown")}
}

func (l *Log) ETAChanged(eta autoquit.ETA) {
	l.log.Info("auto-quit scheduled",
		"eta", eta.Label,
		"at", eta.At.Format(time.RFC3339),
		"in", strings.TrimSpace(humanize.RelTime(eta.At, eta.At.Add(-eta.Total), "", "")))
}

func (l *Log) Update(tick autoquit.Tick) {
	l.log.Debug("countdown", "remaining", tick.RemainingText(), "next", tick.Next)
}

func (l *Log) CadenceChanged(cadence time.Duration) {
	l.log.Info("countdown cadence changed", "every", cadence)
}

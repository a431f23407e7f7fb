// Package display renders the auto-quit countdown.
//
// Terminal draws a progress bar when stderr is a TTY; Log writes structured
// lines otherwise. Fanout sends the same signals to several displays, e.g.
// the terminal and the status server's event stream.
package display

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/stayawake/stay-awake/internal/autoquit"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Terminal is a progress bar that fills up as the deadline approaches.
type Terminal struct {
	p *mpb.Progress

	mu     sync.Mutex
	bar    *mpb.Bar
	total  int64
	closed bool

	// textMu guards what the decorators read. Decorators run on mpb's
	// goroutine, so it is never held while calling into the bar.
	textMu    sync.Mutex
	remaining string
	label     string
	cadence   time.Duration
}

// NewTerminal creates a terminal display writing to w.
func NewTerminal(w io.Writer) *Terminal {
	p := mpb.New(
		mpb.WithOutput(w),
		mpb.WithWidth(48),
		mpb.WithRefreshRate(150*time.Millisecond),
		mpb.WithAutoRefresh(),
	)
	return &Terminal{p: p, remaining: autoquit.FormatRemaining(0)}
}

// ETAChanged creates the bar on the first call and updates the label after.
func (t *Terminal) ETAChanged(eta autoquit.ETA) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.setText(eta.Label, autoquit.FormatRemaining(eta.Total))
	if t.bar != nil {
		return
	}

	t.total = int64(eta.Total.Round(time.Second) / time.Second)
	if t.total < 1 {
		t.total = 1
	}
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	name := "Auto-quit in"
	t.bar = t.p.New(t.total,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string { return t.remainingText() }, decor.WC{W: 12}),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string { return t.etaText() }),
		),
	)
}

// Update moves the bar to the elapsed share of the countdown.
func (t *Terminal) Update(tick autoquit.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.bar == nil {
		return
	}
	t.setText("", tick.RemainingText())
	left := int64(tick.Remaining.Round(time.Second) / time.Second)
	if left > t.total {
		left = t.total
	}
	t.bar.SetCurrent(t.total - left)
}

// CadenceChanged records the interval; it shows up next to the ETA.
func (t *Terminal) CadenceChanged(cadence time.Duration) {
	t.textMu.Lock()
	t.cadence = cadence
	t.textMu.Unlock()
}

// Close stops rendering. An unfinished bar is left on screen as-is.
func (t *Terminal) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.bar != nil && !t.bar.Completed() {
		t.bar.Abort(false)
	}
	t.mu.Unlock()

	t.p.Wait()
}

func (t *Terminal) setText(label, remaining string) {
	t.textMu.Lock()
	defer t.textMu.Unlock()
	if label != "" {
		t.label = label
	}
	t.remaining = remaining
}

func (t *Terminal) remainingText() string {
	t.textMu.Lock()
	defer t.textMu.Unlock()
	return t.remaining
}

func (t *Terminal) etaText() string {
	t.textMu.Lock()
	defer t.textMu.Unlock()
	if t.cadence <= 0 {
		return t.label
	}
	return t.label + " · every " + t.cadence.String()
}

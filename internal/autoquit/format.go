package autoquit

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatRemaining renders d as "DDDd HH:MM:SS", omitting the day segment when
// it is zero. Values are rounded to the nearest second and floored at zero.
func FormatRemaining(d time.Duration) string {
	secs := int64(math.Round(d.Seconds()))
	if secs < 0 {
		secs = 0
	}
	days := secs / 86400
	secs %= 86400
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ETALabel is the human label shown next to the deadline, e.g.
// "2025-01-02 23:22:21 CET (3 hours from now)".
func ETALabel(wall, now time.Time) string {
	return fmt.Sprintf("%s (%s)",
		wall.Format("2006-01-02 15:04:05 MST"),
		humanize.RelTime(wall, now, "ago", "from now"))
}

package autoquit

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// AmbiguityEpsilon is the minimum distance between two valid interpretations
// of one civil time for it to count as ambiguous.
var AmbiguityEpsilon = time.Second

// zoneProbeSpan reaches past any UTC offset so that probes land on both sides
// of a transition near the civil time.
const zoneProbeSpan = 26 * time.Hour

var localTimeRe = regexp.MustCompile(
	`^[ \t]*(\d{4})[ \t]*-[ \t]*(\d{1,2})[ \t]*-[ \t]*(\d{1,2})` +
		`[ \t]+(\d{1,2})[ \t]*:[ \t]*(\d{1,2})[ \t]*:[ \t]*(\d{1,2})[ \t]*$`)

// civil is a wall-clock reading without a zone.
type civil struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
	second int
}

func civilOf(t time.Time) civil {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return civil{y, mo, d, h, mi, s}
}

func (c civil) naive() time.Time {
	return time.Date(c.year, c.month, c.day, c.hour, c.minute, c.second, 0, time.UTC)
}

// ParseLocalTime parses a relaxed "YYYY-MM-DD HH:MM:SS" timestamp in loc
// (time.Local when nil). Month, day, hour, minute and second may have one or
// two digits and blanks may surround the separators.
//
// Civil times skipped by a daylight-saving gap or repeated by an overlap are
// rejected rather than guessed.
func ParseLocalTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	m := localTimeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, hostErrors.FormatError(s)
	}

	var f [6]int
	for i := range f {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return time.Time{}, hostErrors.FormatError(s)
		}
		f[i] = n
	}

	c := civil{f[0], time.Month(f[1]), f[2], f[3], f[4], f[5]}
	if err := checkCalendar(c); err != nil {
		return time.Time{}, hostErrors.CalendarError(s, err.Error())
	}

	return resolveLocal(s, c, loc)
}

func checkCalendar(c civil) error {
	if c.month < time.January || c.month > time.December {
		return fmt.Errorf("month %d out of range", int(c.month))
	}
	if last := daysIn(c.year, c.month); c.day < 1 || c.day > last {
		return fmt.Errorf("day %d out of range for %s %d (1-%d)", c.day, c.month, c.year, last)
	}
	if c.hour > 23 {
		return fmt.Errorf("hour %d out of range", c.hour)
	}
	if c.minute > 59 {
		return fmt.Errorf("minute %d out of range", c.minute)
	}
	if c.second > 59 {
		return fmt.Errorf("second %d out of range", c.second)
	}
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// resolveLocal tries every UTC offset the zone uses around the civil time
// (the standard and daylight hypotheses), keeps the ones whose instant maps
// back to the same civil fields, and requires exactly one distinct instant.
func resolveLocal(input string, c civil, loc *time.Location) (time.Time, error) {
	naive := c.naive()

	var matches []time.Time
	for _, offset := range zoneOffsets(naive, loc) {
		instant := naive.Add(-time.Duration(offset) * time.Second).In(loc)
		if civilOf(instant) == c {
			matches = append(matches, instant)
		}
	}

	if len(matches) == 0 {
		return time.Time{}, hostErrors.NonexistentLocalTime(input, loc.String())
	}

	first := matches[0]
	for _, other := range matches[1:] {
		diff := other.Sub(first)
		if diff < 0 {
			diff = -diff
		}
		if diff >= AmbiguityEpsilon {
			return time.Time{}, hostErrors.AmbiguousLocalTime(input, loc.String())
		}
	}
	return first, nil
}

// zoneOffsets returns the distinct offsets (seconds east of UTC) in effect a
// day before, at, and a day after the naive instant.
func zoneOffsets(naive time.Time, loc *time.Location) []int {
	var offsets []int
	for _, probe := range []time.Time{naive.Add(-zoneProbeSpan), naive, naive.Add(zoneProbeSpan)} {
		_, off := probe.In(loc).Zone()
		seen := false
		for _, o := range offsets {
			if o == off {
				seen = true
				break
			}
		}
		if !seen {
			offsets = append(offsets, off)
		}
	}
	return offsets
}

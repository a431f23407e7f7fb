package autoquit

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// durationTokenRe matches one <integer><unit> token. The unit must follow the
// digits directly; a bare integer counts as minutes.
var durationTokenRe = regexp.MustCompile(`(?i)(\d+)([dhms]?)`)

var unitSeconds = map[string]int64{
	"d": 86400,
	"h": 3600,
	"m": 60,
	"s": 1,
	"":  60,
}

// ParseDuration parses a compact relative duration such as "1h30m", "3d4h5s"
// or "90" (minutes) into whole seconds. Tokens may be separated by whitespace
// and combine additively in any order. "0" is valid and disables auto-quit.
func ParseDuration(s string) (Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, hostErrors.ParseError(s, "empty duration")
	}

	matches := durationTokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, hostErrors.ParseError(s, "no <number><unit> tokens found (units: d, h, m, s)")
	}

	var total int64
	pos := 0
	for _, m := range matches {
		if gap := s[pos:m[0]]; strings.TrimSpace(gap) != "" {
			return 0, hostErrors.ParseError(s, "unexpected text "+strconv.Quote(strings.TrimSpace(gap)))
		}
		pos = m[1]

		n, err := strconv.ParseInt(s[m[2]:m[3]], 10, 64)
		if err != nil {
			return 0, hostErrors.ParseError(s, "number too large")
		}
		mult := unitSeconds[strings.ToLower(s[m[4]:m[5]])]
		if n > math.MaxInt64/mult {
			return 0, hostErrors.ParseError(s, "value too large")
		}
		if total > math.MaxInt64-n*mult {
			return 0, hostErrors.ParseError(s, "value too large")
		}
		total += n * mult
	}

	if tail := s[pos:]; strings.TrimSpace(tail) != "" {
		return 0, hostErrors.ParseError(s, "unexpected text "+strconv.Quote(strings.TrimSpace(tail)))
	}

	return Duration(total), nil
}

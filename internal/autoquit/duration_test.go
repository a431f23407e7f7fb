package autoquit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

func TestParseDuration_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Duration
	}{
		{"0", 0},
		{"90m", 5400},
		{"1h30m", 5400},
		{"3d4h5s", 273605},
		{"2h", 7200},
		{"45s", 45},
		{"2", 120},
		{"1H30M", 5400},
		{"1h1h", 7200},
		{"5s3d", 3*86400 + 5},
		{"1h 30", 5400},
		{"10 20", 1800},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_WhitespaceBetweenTokensIgnored(t *testing.T) {
	variants := []string{"1h30m", "1h 30m", "  1h30m  ", "\t1h \t 30m\n", "1h   30m"}
	for _, v := range variants {
		got, err := ParseDuration(v)
		require.NoError(t, err, v)
		assert.Equal(t, Duration(5400), got, v)
	}
}

func TestParseDuration_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "1x", "1h 2x", "h", "2 h", "1h-2m", "-5", "1.5h", "99999999999999999999", "9223372036854775807d"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			require.Error(t, err)
			assert.True(t, hostErrors.IsCode(err, hostErrors.CodeParseError), "code=%s", hostErrors.GetCode(err))
		})
	}
}

func TestParseDuration_Std(t *testing.T) {
	d, err := ParseDuration("1m5s")
	require.NoError(t, err)
	assert.Equal(t, int64(65), int64(d))
	assert.Equal(t, "1m5s", d.Std().String())
}

package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]time.Duration{
		"1s":  time.Second,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"1M":  30 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := Parse(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "m", "0m", "-5m", "15x", "abc"} {
		_, ok := Parse(bad)
		assert.False(t, ok, bad)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("15m"))
	assert.True(t, Supported("1M"))
	assert.False(t, Supported("7m"))
	assert.False(t, Supported("1mo"))
}

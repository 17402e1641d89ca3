package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, formatBytes(tc.in))
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "01h 02m 03s", formatUptime("01:02:03"))
	assert.Equal(t, "1d2h3m", formatUptime("1d2h3m"))
	assert.Equal(t, "", formatUptime(""))
}

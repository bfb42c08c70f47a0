package voicemessage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	for input, expected := range map[uint64]string{
		0:    "00:00",
		9:    "00:09",
		59:   "00:59",
		60:   "01:00",
		65:   "01:05",
		600:  "10:00",
		3599: "59:59",
		3661: "61:01",
	} {
		require.Equal(t, expected, FormatElapsed(input), "input: %d", input)
	}
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "00:00", FormatDuration(-time.Second))
	require.Equal(t, "00:01", FormatDuration(1999*time.Millisecond))
	require.Equal(t, "61:01", FormatDuration(time.Hour+time.Minute+time.Second))
}

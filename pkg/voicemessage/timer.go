package voicemessage

import (
	"fmt"
	"time"
)

// FormatElapsed renders a whole-second count as MM:SS. Minutes are not
// wrapped into hours: 3661 is "61:01".
func FormatElapsed(seconds uint64) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return FormatElapsed(uint64(d / time.Second))
}

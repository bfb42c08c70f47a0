package types

import (
	"errors"
)

// ErrDeviceUnavailable is returned when the capture permission is denied
// or there is no capture hardware.
var ErrDeviceUnavailable = errors.New("capture device is unavailable")

package voicemessage

import (
	"context"
	"fmt"
)

// CaptureDeviceDummy is used when no capture backend could be initialized.
type CaptureDeviceDummy struct{}

var _ CaptureDevice = CaptureDeviceDummy{}

func (CaptureDeviceDummy) Close() error {
	return nil
}

func (CaptureDeviceDummy) Ping(context.Context) error {
	return nil
}

func (CaptureDeviceDummy) Acquire(context.Context, Constraints) (CaptureHandle, error) {
	return nil, fmt.Errorf("%w: no capture backend is available", ErrDeviceUnavailable)
}

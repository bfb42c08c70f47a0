package types

import (
	"context"
	"io"
)

// Constraints are the capture quality settings requested from a device.
// Backends that cannot honor EchoCancellation or NoiseSuppression still
// capture, the flags are hints.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	SampleRate       SampleRate
	Channels         Channel
}

// Fragment is one chunk of encoded audio as delivered by a device.
type Fragment []byte

type CaptureDevice interface {
	io.Closer

	Ping(context.Context) error
	Acquire(context.Context, Constraints) (CaptureHandle, error)
}

// CaptureHandle is an exclusively acquired device that is producing audio.
type CaptureHandle interface {
	io.Closer

	// Fragments is closed exactly once, after the last fragment of the
	// session is delivered.
	Fragments() <-chan Fragment

	// RequestStop asks the device to flush whatever it still buffers
	// and then close the Fragments channel.
	RequestStop() error

	MIMEType() string
}

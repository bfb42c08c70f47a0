package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type CaptureDevice struct{}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

func NewCaptureDevice() (*CaptureDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &CaptureDevice{}, nil
}

func (*CaptureDevice) Close() error {
	return portaudio.Terminate()
}

func (*CaptureDevice) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)

	if devices, err := portaudio.Devices(); err == nil {
		for idx, device := range devices {
			logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		}
	}
	return nil
}

func (*CaptureDevice) Acquire(
	ctx context.Context,
	constraints types.Constraints,
) (_ types.CaptureHandle, _err error) {
	logger.Tracef(ctx, "Acquire(%#+v)", constraints)
	defer func() { logger.Tracef(ctx, "/Acquire(%#+v): %v", constraints, _err) }()

	if constraints.Channels == 0 || constraints.SampleRate == 0 {
		return nil, fmt.Errorf("invalid constraints: %d channels at %dHz", constraints.Channels, constraints.SampleRate)
	}
	if constraints.EchoCancellation || constraints.NoiseSuppression {
		logger.Debugf(ctx, "echo cancellation and noise suppression are not supported by the portaudio backend, ignoring")
	}

	buf, bytesBuf, framesPerBuffer := newSampleBuffer[int16](
		float64(constraints.SampleRate),
		int(constraints.Channels),
		CaptureBufferSize,
	)
	logger.Debugf(ctx, "input buffer: %T (frames: %d, bytes: %d)", buf, framesPerBuffer, len(bytesBuf))

	stream, err := portaudio.OpenDefaultStream(
		int(constraints.Channels), 0,
		float64(constraints.SampleRate),
		framesPerBuffer,
		buf,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open the default input stream: %w", types.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: unable to start the stream: %w", types.ErrDeviceUnavailable, err)
	}

	return newCaptureHandle(
		ctx,
		stream,
		bytesBuf,
		types.PCMMIMEType(types.PCMFormatS16LE, constraints.SampleRate, constraints.Channels),
	), nil
}

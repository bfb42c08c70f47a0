package pulseaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	clientName = "voicemessage"
	mediaName  = "Voice message"

	// see module-filter-apply
	propertyFilterWant = "filter.want"
	filterEchoCancel   = "echo-cancel"
)

type CaptureDevice struct{}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

func NewCaptureDevice() (*CaptureDevice, error) {
	return &CaptureDevice{}, nil
}

func (*CaptureDevice) Close() error {
	return nil
}

func (*CaptureDevice) Ping(context.Context) error {
	c, err := pulse.NewClient(pulse.ClientApplicationName(clientName))
	if err != nil {
		return fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	defer c.Close()
	_, err = c.DefaultSource()
	return err
}

// Acquire opens a dedicated client per session, so releasing the
// handle releases everything it holds.
func (*CaptureDevice) Acquire(
	ctx context.Context,
	constraints types.Constraints,
) (_ types.CaptureHandle, _err error) {
	logger.Tracef(ctx, "Acquire(%#+v)", constraints)
	defer func() { logger.Tracef(ctx, "/Acquire(%#+v): %v", constraints, _err) }()

	chanMap, err := toChannelMap(constraints.Channels)
	if err != nil {
		return nil, err
	}

	c, err := pulse.NewClient(pulse.ClientApplicationName(clientName))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open a client to Pulse: %w", types.ErrDeviceUnavailable, err)
	}

	h := newCaptureHandle(
		ctx,
		c,
		types.PCMMIMEType(types.PCMFormatS16LE, constraints.SampleRate, constraints.Channels),
	)

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(int(constraints.SampleRate)),
		pulse.RecordChannels(chanMap),
		pulse.RecordMediaName(mediaName),
	}
	if constraints.EchoCancellation || constraints.NoiseSuppression {
		opts = append(opts, pulse.RecordRawOption(func(s *proto.CreateRecordStream) {
			if s.Properties == nil {
				s.Properties = proto.PropList{}
			}
			s.Properties[propertyFilterWant] = proto.PropListString(filterEchoCancel)
		}))
	}

	stream, err := c.NewRecord(pulse.NewWriter(h, proto.FormatInt16LE), opts...)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("%w: unable to initialize a record stream: %w", types.ErrDeviceUnavailable, err)
	}
	h.stream = stream

	stream.Start()
	if stream.Error() != nil {
		_ = h.Close()
		return nil, fmt.Errorf("%w: an error occurred during recording: %w", types.ErrDeviceUnavailable, stream.Error())
	}

	return h, nil
}

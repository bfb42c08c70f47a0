package ffmpeg

import (
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	Priority = 150
)

func init() {
	registry.RegisterCaptureFactory(Priority, CaptureDeviceFactory{})
	registry.RegisterDecoderFactory(Priority, DecoderFactory{})
}

type CaptureDeviceFactory struct{}

func (CaptureDeviceFactory) NewCaptureDevice() (types.CaptureDevice, error) {
	return NewCaptureDevice()
}

type DecoderFactory struct{}

func (DecoderFactory) NewDecoder() (types.Decoder, error) {
	return NewDecoder()
}

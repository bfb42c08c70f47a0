package pulseaudio

import (
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterPlayerFactory(Priority, PlayerPCMPulseFactory{})
	registry.RegisterCaptureFactory(Priority, CaptureDevicePulseFactory{})
}

type PlayerPCMPulseFactory struct{}

func (PlayerPCMPulseFactory) NewPlayerPCM() (types.PlayerPCM, error) {
	return NewPlayerPCM()
}

type CaptureDevicePulseFactory struct{}

func (CaptureDevicePulseFactory) NewCaptureDevice() (types.CaptureDevice, error) {
	return NewCaptureDevice()
}

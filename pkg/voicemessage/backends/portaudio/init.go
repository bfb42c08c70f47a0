package portaudio

import (
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterPlayerFactory(Priority, PlayerPCMFactory{})
	registry.RegisterCaptureFactory(Priority, CaptureDeviceFactory{})
}

type PlayerPCMFactory struct{}

func (PlayerPCMFactory) NewPlayerPCM() (types.PlayerPCM, error) {
	return NewPlayerPCM()
}

type CaptureDeviceFactory struct{}

func (CaptureDeviceFactory) NewCaptureDevice() (types.CaptureDevice, error) {
	return NewCaptureDevice()
}

package oto

import (
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	Priority = 50
)

func init() {
	registry.RegisterPlayerFactory(Priority, PlayerPCMOtoFactory{})
}

type PlayerPCMOtoFactory struct{}

func (PlayerPCMOtoFactory) NewPlayerPCM() (types.PlayerPCM, error) {
	return NewPlayerPCM()
}

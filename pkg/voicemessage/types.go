package voicemessage

import (
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type SampleRate = types.SampleRate
type Channel = types.Channel
type PCMFormat = types.PCMFormat

const (
	PCMFormatUndefined = types.PCMFormatUndefined
	PCMFormatU8        = types.PCMFormatU8
	PCMFormatS16LE     = types.PCMFormatS16LE
	PCMFormatS32LE     = types.PCMFormatS32LE
	PCMFormatFloat32LE = types.PCMFormatFloat32LE
)

type Constraints = types.Constraints
type Fragment = types.Fragment
type CaptureDevice = types.CaptureDevice
type CaptureHandle = types.CaptureHandle

type PlayerPCM = types.PlayerPCM
type PlayStream = types.PlayStream
type Decoder = types.Decoder
type DecodedPCM = types.DecodedPCM

// DefaultConstraints is the capture configuration voice messages are recorded with.
var DefaultConstraints = Constraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	SampleRate:       44100,
	Channels:         1,
}

package types

import (
	"fmt"
)

type SampleRate uint32

type Channel uint32

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS32LE
	PCMFormatFloat32LE
	endOfPCMFormat
)

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "undefined"
	case PCMFormatU8:
		return "U8"
	case PCMFormatS16LE:
		return "S16LE"
	case PCMFormatS32LE:
		return "S32LE"
	case PCMFormatFloat32LE:
		return "F32LE"
	default:
		return fmt.Sprintf("unknown_format_%d", uint(f))
	}
}

// BytesPerSample returns the size of a single sample of a single channel.
func (f PCMFormat) BytesPerSample() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE:
		return 2
	case PCMFormatS32LE, PCMFormatFloat32LE:
		return 4
	default:
		return 0
	}
}

func ParsePCMFormat(s string) (PCMFormat, error) {
	for f := PCMFormatUndefined + 1; f < endOfPCMFormat; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return PCMFormatUndefined, fmt.Errorf("unknown PCM format '%s'", s)
}

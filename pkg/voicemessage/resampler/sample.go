package resampler

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

func clamp(v, min, max float64) float64 {
	switch {
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}

func getFloat64(f types.PCMFormat, p []byte) float64 {
	switch f {
	case types.PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case types.PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case types.PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	case types.PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func setFloat64(f types.PCMFormat, p []byte, v float64) {
	switch f {
	case types.PCMFormatU8:
		p[0] = byte(clamp(math.Round(v*128+128), 0, math.MaxUint8))
	case types.PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(clamp(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
	case types.PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(clamp(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
	case types.PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

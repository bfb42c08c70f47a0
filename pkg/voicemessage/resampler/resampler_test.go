package resampler

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

func TestResampler(t *testing.T) {
	t.Run("Identity_S16LE_Mono_44100", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}
		data := make([]byte, 200)
		for i := 0; i < 100; i++ {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(i*100))
		}
		r, err := NewResampler(inFmt, bytes.NewReader(data), inFmt)
		require.NoError(t, err)

		out := make([]byte, 200)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 200, n)
		assert.Equal(t, data, out)

		_, err = r.Read(out)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Conversion_U8_to_Float32LE_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatFloat32LE,
		}
		r, err := NewResampler(inFmt, bytes.NewReader([]byte{0, 128, 255}), outFmt)
		require.NoError(t, err)

		out := make([]byte, 3*4)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 12, n)

		assert.InDelta(t, -1.0, math.Float32frombits(binary.LittleEndian.Uint32(out[0:4])), 0.01)
		assert.InDelta(t, 0.0, math.Float32frombits(binary.LittleEndian.Uint32(out[4:8])), 0.01)
		assert.InDelta(t, 1.0, math.Float32frombits(binary.LittleEndian.Uint32(out[8:12])), 0.01)
	})

	t.Run("Clipping_Float32LE_to_S16LE", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 48000,
			PCMFormat:  types.PCMFormatFloat32LE,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 48000,
			PCMFormat:  types.PCMFormatS16LE,
		}
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data[0:], math.Float32bits(1.5))
		binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-1.5))
		r, err := NewResampler(inFmt, bytes.NewReader(data), outFmt)
		require.NoError(t, err)

		out := make([]byte, 4)
		n, err := r.Read(out)
		require.NoError(t, err)
		require.Equal(t, 4, n)
		assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(out[0:])))
		assert.Equal(t, int16(math.MinInt16), int16(binary.LittleEndian.Uint16(out[2:])))
	})

	t.Run("Resampling_44100_to_22050", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 22050,
			PCMFormat:  types.PCMFormatU8,
		}
		data := make([]byte, 100)
		for i := range data {
			data[i] = byte(i)
		}
		r, err := NewResampler(inFmt, bytes.NewReader(data), outFmt)
		require.NoError(t, err)

		out := make([]byte, 50)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 50, n)
		assert.Equal(t, data[0], out[0])
		assert.Equal(t, data[2], out[1])
	})

	t.Run("Resampling_22050_to_44100", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 22050,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		r, err := NewResampler(inFmt, bytes.NewReader([]byte{10, 20, 30}), outFmt)
		require.NoError(t, err)

		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, []byte{10, 10, 20, 20, 30, 30}, out)
	})

	t.Run("Channels_Mono_to_Stereo", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		r, err := NewResampler(inFmt, bytes.NewReader([]byte{10, 20, 30}), outFmt)
		require.NoError(t, err)

		out := make([]byte, 6)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 6, n)
		assert.Equal(t, []byte{10, 10, 20, 20, 30, 30}, out)
	})

	t.Run("Channels_Stereo_to_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatU8,
		}
		r, err := NewResampler(inFmt, bytes.NewReader([]byte{100, 200, 50, 150}), outFmt)
		require.NoError(t, err)

		out := make([]byte, 2)
		n, err := r.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []byte{150, 100}, out)
	})

	t.Run("TruncatedFrame", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}
		r, err := NewResampler(inFmt, bytes.NewReader([]byte{1, 0, 2}), inFmt)
		require.NoError(t, err)

		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 0}, out)
	})

	t.Run("UnsupportedChannelLayout", func(t *testing.T) {
		_, err := NewResampler(
			Format{Channels: 2, SampleRate: 44100, PCMFormat: types.PCMFormatU8},
			bytes.NewReader(nil),
			Format{Channels: 3, SampleRate: 44100, PCMFormat: types.PCMFormatU8},
		)
		assert.Error(t, err)
	})
}

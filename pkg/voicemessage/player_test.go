package voicemessage

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type recordingPlayerPCM struct {
	sampleRate SampleRate
	channels   Channel
	format     PCMFormat
	played     []byte
}

func (*recordingPlayerPCM) Close() error               { return nil }
func (*recordingPlayerPCM) Ping(context.Context) error { return nil }

func (p *recordingPlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	format PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (PlayStream, error) {
	p.sampleRate, p.channels, p.format = sampleRate, channels, format
	var err error
	p.played, err = io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return StreamDummy{}, nil
}

func TestPlayerPreviewPCM(t *testing.T) {
	ctx := context.Background()
	backend := &recordingPlayerPCM{}
	p := NewPlayer(backend)

	pcm := []byte{1, 0, 2, 0, 3, 0}
	artifact := NewArtifact(pcm, types.PCMMIMEType(PCMFormatS16LE, 44100, 1))
	stream, err := p.Preview(ctx, artifact)
	require.NoError(t, err)
	require.NoError(t, stream.Drain())
	require.Equal(t, SampleRate(44100), backend.sampleRate)
	require.Equal(t, Channel(1), backend.channels)
	require.Equal(t, PCMFormatS16LE, backend.format)
	require.Equal(t, pcm, backend.played)
}

func TestPlayerPreviewUnsupported(t *testing.T) {
	p := NewPlayer(&recordingPlayerPCM{})
	_, err := p.Preview(context.Background(), NewArtifact([]byte{0x1a, 0x45, 0xdf, 0xa3}, types.MIMETypeWebMOpus))
	require.ErrorIs(t, err, ErrPreviewUnsupported)

	p = NewPlayer(&recordingPlayerPCM{}, &fakeDecoder{})
	_, err = p.Preview(context.Background(), NewArtifact([]byte{1}, "application/octet-stream"))
	require.ErrorIs(t, err, ErrPreviewUnsupported)
}

type fakeDecoder struct {
	input  []byte
	closed bool
}

func (*fakeDecoder) SupportsMIMEType(mimeType string) bool {
	return types.MediaType(mimeType) == "audio/webm"
}

func (d *fakeDecoder) DecodePCM(
	ctx context.Context,
	mimeType string,
	reader io.Reader,
) (*DecodedPCM, error) {
	var err error
	d.input, err = io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	samples := make([]byte, 8)
	binary.LittleEndian.PutUint32(samples[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(samples[4:], math.Float32bits(-0.25))
	return &DecodedPCM{
		ReadCloser: fakeDecodedReader{Reader: bytes.NewReader(samples), decoder: d},
		SampleRate: 48000,
		Channels:   1,
		Format:     PCMFormatFloat32LE,
	}, nil
}

type fakeDecodedReader struct {
	io.Reader
	decoder *fakeDecoder
}

func (r fakeDecodedReader) Close() error {
	r.decoder.closed = true
	return nil
}

func TestPlayerPreviewWebMThroughDecoder(t *testing.T) {
	ctx := context.Background()
	backend := &recordingPlayerPCM{}
	decoder := &fakeDecoder{}
	p := NewPlayer(backend, decoder)

	webm := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01, 0x02}
	stream, err := p.Preview(ctx, NewArtifact(webm, types.MIMETypeWebMOpus))
	require.NoError(t, err)
	require.NoError(t, stream.Drain())
	require.NoError(t, stream.Close())

	require.Equal(t, webm, decoder.input)
	require.True(t, decoder.closed)
	require.Equal(t, SampleRate(48000), backend.sampleRate)
	require.Equal(t, Channel(1), backend.channels)
	require.Equal(t, PCMFormatFloat32LE, backend.format)
	require.Len(t, backend.played, 8)
	require.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(backend.played[0:])))
}

func TestPlayerPreviewOggVorbis(t *testing.T) {
	ctx := context.Background()
	ogg, err := os.ReadFile("testdata/voice.ogg")
	require.NoError(t, err)

	backend := &recordingPlayerPCM{}
	p := NewPlayer(backend)
	stream, err := p.Preview(ctx, NewArtifact(ogg, types.MIMETypeOggVorbis))
	require.NoError(t, err)
	require.NoError(t, stream.Drain())

	require.Equal(t, SampleRate(44100), backend.sampleRate)
	require.Equal(t, Channel(1), backend.channels)
	require.Equal(t, PCMFormatFloat32LE, backend.format)
	require.Len(t, backend.played, 44100*4)
	for idx := 0; idx < len(backend.played); idx += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(backend.played[idx:]))
		require.InDelta(t, 0, v, 1.0001)
	}
}

type sliceFloat32Reader struct {
	samples []float32
}

func (r *sliceFloat32Reader) Read(p []float32) (int, error) {
	if len(r.samples) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.samples)
	r.samples = r.samples[n:]
	return n, nil
}

func TestReaderFromFloat32Reader(t *testing.T) {
	samples := []float32{0, 0.5, -1, 1}
	r := newReaderFromFloat32Reader(&sliceFloat32Reader{samples: samples})

	var out bytes.Buffer
	buf := make([]byte, 7) // rounded down to 4
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, 16, out.Len())
	for idx, sample := range samples {
		v := math.Float32frombits(binary.LittleEndian.Uint32(out.Bytes()[idx*4:]))
		require.Equal(t, sample, v)
	}

	_, err := r.Read(make([]byte, 3))
	require.ErrorIs(t, err, io.ErrShortBuffer)
}

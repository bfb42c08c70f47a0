package resampler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type Format struct {
	Channels   types.Channel
	SampleRate types.SampleRate
	PCMFormat  types.PCMFormat
}

func (f Format) frameSize() uint {
	return f.PCMFormat.BytesPerSample() * uint(f.Channels)
}

// Resampler converts interleaved PCM into another format, channel layout
// and sample rate. Sample rate conversion picks the nearest preceding
// input frame, which is good enough to preview a voice recording.
type Resampler struct {
	inReader  *bufio.Reader
	inFormat  Format
	outFormat Format

	locker sync.Mutex

	// step is the amount of input frames per one output frame
	step float64
	// position of the next output frame, in input frames
	position float64
	// index of the input frame decoded into frame; -1 if none
	frameIdx int64
	frame    []float64
	inBuf    []byte
	mixed    []float64
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  bufio.NewReader(inReader),
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	for _, f := range []Format{r.inFormat, r.outFormat} {
		if f.PCMFormat.BytesPerSample() == 0 {
			return fmt.Errorf("unsupported PCM format %s", f.PCMFormat)
		}
		if f.Channels == 0 || f.SampleRate == 0 {
			return fmt.Errorf("invalid format: %d channels at %dHz", f.Channels, f.SampleRate)
		}
	}
	if r.inFormat.Channels != r.outFormat.Channels && r.inFormat.Channels != 1 && r.outFormat.Channels != 1 {
		return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
	}

	r.step = float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate)
	r.frameIdx = -1
	r.frame = make([]float64, r.inFormat.Channels)
	r.inBuf = make([]byte, r.inFormat.frameSize())
	r.mixed = make([]float64, r.outFormat.Channels)
	return nil
}

func (r *Resampler) readFrame() error {
	if _, err := io.ReadFull(r.inReader, r.inBuf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	sampleSize := r.inFormat.PCMFormat.BytesPerSample()
	for ch := range r.frame {
		r.frame[ch] = getFloat64(r.inFormat.PCMFormat, r.inBuf[uint(ch)*sampleSize:])
	}
	r.frameIdx++
	return nil
}

func (r *Resampler) mix() {
	switch {
	case len(r.frame) == len(r.mixed):
		copy(r.mixed, r.frame)
	case len(r.frame) == 1:
		for ch := range r.mixed {
			r.mixed[ch] = r.frame[0]
		}
	default:
		var sum float64
		for _, v := range r.frame {
			sum += v
		}
		r.mixed[0] = sum / float64(len(r.frame))
	}
}

func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	outFrameSize := r.outFormat.frameSize()
	sampleSize := r.outFormat.PCMFormat.BytesPerSample()
	maxOutFrames := uint(len(p)) / outFrameSize
	if maxOutFrames == 0 {
		return 0, io.ErrShortBuffer
	}

	var n uint
	for n < maxOutFrames {
		for r.frameIdx < int64(r.position) {
			if err := r.readFrame(); err != nil {
				if n > 0 && errors.Is(err, io.EOF) {
					return int(n * outFrameSize), nil
				}
				return int(n * outFrameSize), err
			}
		}
		r.mix()
		out := p[n*outFrameSize:]
		for ch, v := range r.mixed {
			setFloat64(r.outFormat.PCMFormat, out[uint(ch)*sampleSize:], v)
		}
		n++
		r.position += r.step
	}
	return int(n * outFrameSize), nil
}

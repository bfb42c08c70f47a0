package voicemessage

import (
	"encoding/binary"
	"io"
	"math"
)

type float32Reader interface {
	Read([]float32) (int, error)
}

type readerFromFloat32Reader struct {
	float32Reader
	buffer []float32
}

var _ io.Reader = (*readerFromFloat32Reader)(nil)

func newReaderFromFloat32Reader(r float32Reader) *readerFromFloat32Reader {
	return &readerFromFloat32Reader{
		float32Reader: r,
	}
}

// Read converts the samples to PCMFormatFloat32LE. len(p) is rounded
// down to a multiple of 4.
func (r *readerFromFloat32Reader) Read(p []byte) (int, error) {
	count := len(p) / 4
	if count == 0 {
		return 0, io.ErrShortBuffer
	}
	if cap(r.buffer) < count {
		r.buffer = make([]float32, count)
	}
	samples := r.buffer[:count]

	n, err := r.float32Reader.Read(samples)
	for idx, sample := range samples[:n] {
		binary.LittleEndian.PutUint32(p[idx*4:], math.Float32bits(sample))
	}
	return n * 4, err
}

package portaudio

import (
	"time"
	"unsafe"
)

// newSampleBuffer allocates a buffer for bufferSize of interleaved audio
// and also returns its byte view. The byte view is in the native byte
// order, which is little endian on every platform we build for.
func newSampleBuffer[T any](
	sampleRate float64,
	channels int,
	bufferSize time.Duration,
) (_ []T, _ []byte, framesPerBuffer int) {
	framesPerBuffer = int(bufferSize.Seconds() * sampleRate)
	buf := make([]T, framesPerBuffer*channels)

	var sample T
	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))
	return buf, bytesBuf, framesPerBuffer
}

package types

import (
	"context"
	"io"
)

// DecodedPCM is interleaved PCM decoded out of an encoded recording.
// Closing it releases the decoder.
type DecodedPCM struct {
	io.ReadCloser
	SampleRate SampleRate
	Channels   Channel
	Format     PCMFormat
}

type Decoder interface {
	SupportsMIMEType(mimeType string) bool
	DecodePCM(ctx context.Context, mimeType string, reader io.Reader) (*DecodedPCM, error)
}

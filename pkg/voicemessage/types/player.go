package types

import (
	"context"
	"io"
	"time"
)

type PlayerPCM interface {
	io.Closer

	Ping(context.Context) error
	PlayPCM(
		ctx context.Context,
		sampleRate SampleRate,
		channels Channel,
		format PCMFormat,
		bufferSize time.Duration,
		reader io.Reader,
	) (PlayStream, error)
}

type PlayStream interface {
	io.Closer
	Drain() error
}

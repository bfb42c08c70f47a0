package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type PlayPCMStream struct {
	PortAudioStream *portaudio.Stream
	OutputBuffer    []byte
	Reader          io.Reader
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup

	closeOnce sync.Once
	err       error
}

var _ types.PlayStream = (*PlayPCMStream)(nil)

func newPlayPCMStream[T any](
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	bufferSize time.Duration,
) (*PlayPCMStream, error) {
	buf, bytesBuf, framesPerBuffer := newSampleBuffer[T](float64(sampleRate), int(channels), bufferSize)
	logger.Debugf(ctx, "newPlayPCMStream: %T, %d, %d %s(%d)", buf, sampleRate, channels, bufferSize, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, int(channels), float64(sampleRate), framesPerBuffer, &buf)
	if err != nil {
		return nil, err
	}

	logger.Debugf(ctx, "output bytes buffer size: %d", len(bytesBuf))
	return &PlayPCMStream{
		PortAudioStream: stream,
		OutputBuffer:    bytesBuf,
	}, nil
}

func (s *PlayPCMStream) init(
	ctx context.Context,
	rawReader io.Reader,
) error {
	s.Reader = rawReader
	ctx, s.CancelFunc = context.WithCancel(ctx)

	err := s.PortAudioStream.Start()
	if err != nil {
		s.CancelFunc()
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		s.err = s.writerLoop(ctx)
	})
	return nil
}

// writerLoop feeds the stream until the reader is exhausted; the tail
// of the last buffer is padded with silence.
func (s *PlayPCMStream) writerLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "writerLoop")
	defer func() { logger.Debugf(ctx, "/writerLoop: %v", _ret) }()
	defer func() {
		if err := s.PortAudioStream.Stop(); err != nil {
			logger.Debugf(ctx, "unable to stop the stream: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := io.ReadFull(s.Reader, s.OutputBuffer)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			clear(s.OutputBuffer[n:])
		default:
			return fmt.Errorf("unable to read: %w", err)
		}

		logger.Tracef(ctx, "Write")
		werr := s.PortAudioStream.Write()
		logger.Tracef(ctx, "/Write: %v", werr)
		if werr != nil && !errors.Is(werr, portaudio.OutputUnderflowed) {
			return fmt.Errorf("unable to write: %w", werr)
		}
		if err != nil {
			return nil
		}
	}
}

func (s *PlayPCMStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.CancelFunc()
		s.WaitGroup.Wait()
		err = s.PortAudioStream.Close()
	})
	return err
}

func (s *PlayPCMStream) Drain() error {
	s.WaitGroup.Wait()
	return s.err
}

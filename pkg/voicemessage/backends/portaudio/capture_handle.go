package portaudio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	CaptureBufferSize = time.Millisecond * 100
)

// captureHandle reads CaptureBufferSize of audio at a time, so a stop
// request takes effect after at most one more buffer.
type captureHandle struct {
	stream   *portaudio.Stream
	buffer   []byte
	mimeType string

	stopRequested atomic.Bool
	fragments     chan types.Fragment
	abort         chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

var _ types.CaptureHandle = (*captureHandle)(nil)

func newCaptureHandle(
	ctx context.Context,
	stream *portaudio.Stream,
	buffer []byte,
	mimeType string,
) *captureHandle {
	h := &captureHandle{
		stream:    stream,
		buffer:    buffer,
		mimeType:  mimeType,
		fragments: make(chan types.Fragment, 1),
		abort:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	observability.Go(ctx, func() {
		defer close(h.done)
		defer close(h.fragments)
		h.readLoop(ctx)
	})
	return h
}

func (h *captureHandle) readLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "readLoop")
	defer func() { logger.Debugf(ctx, "/readLoop: %v", _ret) }()
	defer func() {
		if err := h.stream.Stop(); err != nil {
			logger.Debugf(ctx, "unable to stop the stream: %v", err)
		}
		if err := h.stream.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the stream: %v", err)
		}
	}()

	for !h.stopRequested.Load() {
		logger.Tracef(ctx, "Read")
		err := h.stream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		switch {
		case err == nil:
		case errors.Is(err, portaudio.InputOverflowed):
			logger.Warnf(ctx, "input overflowed, some audio was lost")
		default:
			return err
		}

		select {
		case h.fragments <- types.Fragment(bytes.Clone(h.buffer)):
		case <-h.abort:
			return nil
		}
	}
	return nil
}

func (h *captureHandle) Fragments() <-chan types.Fragment {
	return h.fragments
}

func (h *captureHandle) MIMEType() string {
	return h.mimeType
}

func (h *captureHandle) RequestStop() error {
	h.stopRequested.Store(true)
	return nil
}

func (h *captureHandle) Close() error {
	h.closeOnce.Do(func() {
		h.stopRequested.Store(true)
		close(h.abort)
	})
	<-h.done
	return nil
}

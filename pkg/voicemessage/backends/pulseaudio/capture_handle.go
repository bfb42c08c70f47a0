package pulseaudio

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

// captureHandle turns every Write of the Pulse record stream into
// a fragment.
//
// Write is called from the goroutine that also handles the replies
// of the Pulse server, so it must never block on the consumer:
// fragments are queued and forwarded by a separate goroutine.
type captureHandle struct {
	client   *pulse.Client
	stream   *pulse.RecordStream
	mimeType string

	locker    sync.Mutex
	pending   []types.Fragment
	finished  bool
	notify    chan struct{}
	fragments chan types.Fragment
	closeOnce sync.Once
}

var _ types.CaptureHandle = (*captureHandle)(nil)

func newCaptureHandle(
	ctx context.Context,
	client *pulse.Client,
	mimeType string,
) *captureHandle {
	h := &captureHandle{
		client:    client,
		mimeType:  mimeType,
		notify:    make(chan struct{}, 1),
		fragments: make(chan types.Fragment),
	}
	observability.Go(ctx, func() {
		h.forwardLoop(ctx)
	})
	return h
}

func (h *captureHandle) Write(p []byte) (int, error) {
	h.locker.Lock()
	defer h.locker.Unlock()
	if h.finished {
		return len(p), nil
	}
	h.pending = append(h.pending, types.Fragment(bytes.Clone(p)))
	h.wakeUp()
	return len(p), nil
}

// wakeUp must be called with the locker held.
func (h *captureHandle) wakeUp() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *captureHandle) forwardLoop(ctx context.Context) {
	logger.Debugf(ctx, "forwardLoop")
	defer logger.Debugf(ctx, "/forwardLoop")
	defer close(h.fragments)
	for range h.notify {
		h.locker.Lock()
		pending := h.pending
		h.pending = nil
		finished := h.finished
		h.locker.Unlock()

		for _, fragment := range pending {
			h.fragments <- fragment
		}
		if finished {
			h.locker.Lock()
			empty := len(h.pending) == 0
			h.locker.Unlock()
			if empty {
				return
			}
		}
	}
}

func (h *captureHandle) Fragments() <-chan types.Fragment {
	return h.fragments
}

func (h *captureHandle) MIMEType() string {
	return h.mimeType
}

// RequestStop stops the stream; Pulse delivers everything it has
// read before Stop returns.
func (h *captureHandle) RequestStop() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	if h.stream != nil {
		h.stream.Stop()
	}
	h.finish()
	return nil
}

func (h *captureHandle) finish() {
	h.locker.Lock()
	defer h.locker.Unlock()
	if h.finished {
		return
	}
	h.finished = true
	h.wakeUp()
}

func (h *captureHandle) Close() (err error) {
	h.closeOnce.Do(func() {
		defer func() {
			r := recover()
			if r != nil {
				err = fmt.Errorf("got a panic: %v", r)
			}
		}()
		h.finish()
		if h.stream != nil {
			h.stream.Stop()
			h.stream.Close()
		}
		h.client.Close()
	})
	return
}

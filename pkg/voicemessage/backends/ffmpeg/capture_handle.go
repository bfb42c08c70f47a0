package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	readBufferSize   = 16 * 1024
	fragmentsBacklog = 16
)

type captureHandle struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *datacounter.ReaderCounter
	mimeType string

	// stderr is read only after exited is closed
	stderr bytes.Buffer

	fragments     chan types.Fragment
	firstData     chan struct{}
	firstDataOnce sync.Once
	exited        chan struct{}
	waitErr       error

	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
}

var _ types.CaptureHandle = (*captureHandle)(nil)

func newCaptureHandle(
	cmd *exec.Cmd,
	stdin io.WriteCloser,
	stdout *datacounter.ReaderCounter,
	mimeType string,
) *captureHandle {
	return &captureHandle{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		mimeType:  mimeType,
		fragments: make(chan types.Fragment, fragmentsBacklog),
		firstData: make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

func (h *captureHandle) readLoop(ctx context.Context) {
	logger.Debugf(ctx, "readLoop")
	defer func() { logger.Debugf(ctx, "/readLoop: read %d bytes", h.stdout.Count()) }()
	defer close(h.fragments)

	buf := make([]byte, readBufferSize)
	for {
		n, err := h.stdout.Read(buf)
		if n > 0 {
			h.firstDataOnce.Do(func() { close(h.firstData) })
			h.fragments <- types.Fragment(bytes.Clone(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logger.Errorf(ctx, "unable to read from ffmpeg: %v", err)
			}
			break
		}
	}

	h.waitErr = h.cmd.Wait()
	if h.waitErr != nil {
		logger.Debugf(ctx, "ffmpeg exited: %v: %s", h.waitErr, h.stderr.String())
	}
	close(h.exited)
}

func (h *captureHandle) Fragments() <-chan types.Fragment {
	return h.fragments
}

func (h *captureHandle) MIMEType() string {
	return h.mimeType
}

// RequestStop sends "q" to ffmpeg, which makes it flush the encoder and
// write the container trailer before exiting.
func (h *captureHandle) RequestStop() error {
	h.stopOnce.Do(func() {
		_, err := h.stdin.Write([]byte("q"))
		if closeErr := h.stdin.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			return
		}
		if sigErr := h.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			h.stopErr = fmt.Errorf("unable to ask ffmpeg to quit (%v), and unable to interrupt it: %w", err, sigErr)
		}
	})
	return h.stopErr
}

func (h *captureHandle) Close() error {
	h.closeOnce.Do(func() {
		select {
		case <-h.exited:
			return
		default:
		}
		_ = h.stdin.Close()
		_ = h.cmd.Process.Kill()
		for range h.fragments {
		}
		<-h.exited
	})
	return nil
}

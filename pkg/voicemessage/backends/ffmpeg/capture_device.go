package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const (
	DefaultBitrate = "32k"
)

// CaptureDevice records through an ffmpeg child process, so the
// result is an encoded container instead of raw PCM.
type CaptureDevice struct {
	BinaryPath  string
	InputFormat string
	InputName   string
	Container   Container
	Bitrate     string
}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

func NewCaptureDevice() (*CaptureDevice, error) {
	binaryPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("unable to find ffmpeg: %w", err)
	}
	inputFormat, inputName := defaultInput()
	return &CaptureDevice{
		BinaryPath:  binaryPath,
		InputFormat: inputFormat,
		InputName:   inputName,
		Container:   ContainerWebMOpus,
		Bitrate:     DefaultBitrate,
	}, nil
}

func (*CaptureDevice) Close() error {
	return nil
}

// Ping checks that the ffmpeg build has the configured input device.
func (d *CaptureDevice) Ping(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, d.BinaryPath, "-hide_banner", "-devices").Output()
	if err != nil {
		return fmt.Errorf("unable to list ffmpeg devices: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if strings.Contains(fields[0], "D") && fields[1] == d.InputFormat {
			return nil
		}
	}
	return fmt.Errorf("ffmpeg at '%s' does not support input device '%s'", d.BinaryPath, d.InputFormat)
}

// Acquire starts ffmpeg and returns once it produced the first bytes,
// so a missing microphone or a denied permission is reported here
// and not as an empty recording.
func (d *CaptureDevice) Acquire(
	ctx context.Context,
	constraints types.Constraints,
) (_ types.CaptureHandle, _err error) {
	logger.Tracef(ctx, "Acquire(%#+v)", constraints)
	defer func() { logger.Tracef(ctx, "/Acquire(%#+v): %v", constraints, _err) }()

	args, err := d.Args(constraints)
	if err != nil {
		return nil, err
	}
	if constraints.EchoCancellation {
		logger.Debugf(ctx, "echo cancellation is not supported by the ffmpeg backend, ignoring")
	}

	cmd := exec.Command(d.BinaryPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open stdin of ffmpeg: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open stdout of ffmpeg: %w", err)
	}
	h := newCaptureHandle(cmd, stdin, datacounter.NewReaderCounter(stdout), d.Container.MIMEType())
	cmd.Stderr = &h.stderr

	logger.Debugf(ctx, "running %s %s", d.BinaryPath, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: unable to start ffmpeg: %w", types.ErrDeviceUnavailable, err)
	}

	observability.Go(ctx, func() {
		h.readLoop(ctx)
	})

	select {
	case <-h.firstData:
		return h, nil
	case <-h.exited:
		select {
		case <-h.firstData:
			return h, nil
		default:
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before producing audio: %v: %s", types.ErrDeviceUnavailable, h.waitErr, strings.TrimSpace(h.stderr.String()))
	case <-ctx.Done():
		_ = h.Close()
		return nil, ctx.Err()
	}
}

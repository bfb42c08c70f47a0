package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

// Decoded recordings are mixed down to mono; voice messages are
// recorded mono anyway.
const (
	DecodeSampleRate = types.SampleRate(opusSampleRate)
	DecodeChannels   = types.Channel(1)
	DecodeFormat     = types.PCMFormatFloat32LE
)

// Decoder converts encoded recordings into PCM through an ffmpeg
// child process, so recordings of this backend can be previewed.
type Decoder struct {
	BinaryPath string
}

var _ types.Decoder = (*Decoder)(nil)

func NewDecoder() (*Decoder, error) {
	binaryPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("unable to find ffmpeg: %w", err)
	}
	return &Decoder{
		BinaryPath: binaryPath,
	}, nil
}

func (*Decoder) SupportsMIMEType(mimeType string) bool {
	switch types.MediaType(mimeType) {
	case types.MediaType(types.MIMETypeWebMOpus), types.MediaType(types.MIMETypeOggVorbis):
		return true
	default:
		return false
	}
}

func (*Decoder) Args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostats",
		"-i", "pipe:0",
		"-vn",
		"-ac", strconv.FormatUint(uint64(DecodeChannels), 10),
		"-ar", strconv.FormatUint(uint64(DecodeSampleRate), 10),
		"-f", "f32le",
		"pipe:1",
	}
}

func (d *Decoder) DecodePCM(
	ctx context.Context,
	mimeType string,
	reader io.Reader,
) (_ *types.DecodedPCM, _err error) {
	logger.Tracef(ctx, "DecodePCM(%s)", mimeType)
	defer func() { logger.Tracef(ctx, "/DecodePCM(%s): %v", mimeType, _err) }()

	if !d.SupportsMIMEType(mimeType) {
		return nil, fmt.Errorf("do not know how to decode '%s'", mimeType)
	}

	cmd := exec.CommandContext(ctx, d.BinaryPath, d.Args()...)
	cmd.Stdin = reader
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open stdout of ffmpeg: %w", err)
	}
	out := &decodeOutput{
		cmd:    cmd,
		stdout: stdout,
	}
	cmd.Stderr = &out.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start ffmpeg: %w", err)
	}

	return &types.DecodedPCM{
		ReadCloser: out,
		SampleRate: DecodeSampleRate,
		Channels:   DecodeChannels,
		Format:     DecodeFormat,
	}, nil
}

type decodeOutput struct {
	cmd    *exec.Cmd
	stdout io.Reader

	// stderr is read only after the process is waited for
	stderr bytes.Buffer

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func (o *decodeOutput) wait() error {
	o.waitOnce.Do(func() {
		o.waitErr = o.cmd.Wait()
	})
	return o.waitErr
}

func (o *decodeOutput) Read(p []byte) (int, error) {
	n, err := o.stdout.Read(p)
	if !errors.Is(err, io.EOF) {
		return n, err
	}
	if waitErr := o.wait(); waitErr != nil {
		return n, fmt.Errorf("ffmpeg was unable to decode the recording: %w: %s", waitErr, strings.TrimSpace(o.stderr.String()))
	}
	return n, io.EOF
}

func (o *decodeOutput) Close() error {
	o.closeOnce.Do(func() {
		_ = o.cmd.Process.Kill()
		_ = o.wait()
	})
	return nil
}

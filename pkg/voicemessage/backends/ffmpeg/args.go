package ffmpeg

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type Container uint

const (
	ContainerWebMOpus = Container(iota)
	ContainerOggVorbis
)

func (c Container) String() string {
	switch c {
	case ContainerWebMOpus:
		return "webm"
	case ContainerOggVorbis:
		return "ogg"
	default:
		return fmt.Sprintf("unknown_container_%d", uint(c))
	}
}

func (c Container) MIMEType() string {
	switch c {
	case ContainerWebMOpus:
		return types.MIMETypeWebMOpus
	case ContainerOggVorbis:
		return types.MIMETypeOggVorbis
	default:
		return "application/octet-stream"
	}
}

func ParseContainer(s string) (Container, error) {
	for _, c := range []Container{ContainerWebMOpus, ContainerOggVorbis} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown container '%s'", s)
}

// libopus accepts only 8/12/16/24/48 kHz
const opusSampleRate = 48000

func defaultInput() (string, string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	default:
		return "pulse", "default"
	}
}

// Args returns the ffmpeg command line for capturing with the given
// constraints into stdout.
func (d *CaptureDevice) Args(constraints types.Constraints) ([]string, error) {
	sampleRate := strconv.FormatUint(uint64(constraints.SampleRate), 10)
	channels := strconv.FormatUint(uint64(constraints.Channels), 10)
	if constraints.SampleRate == 0 || constraints.Channels == 0 {
		return nil, fmt.Errorf("sample rate and channel count must be positive, got %s and %s", sampleRate, channels)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	args = append(args, "-f", d.InputFormat)
	if d.InputFormat == "pulse" {
		args = append(args, "-sample_rate", sampleRate, "-channels", channels)
	}
	args = append(args, "-i", d.InputName)

	if constraints.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	args = append(args, "-ac", channels)

	switch d.Container {
	case ContainerWebMOpus:
		args = append(args,
			"-ar", strconv.Itoa(opusSampleRate),
			"-c:a", "libopus",
			"-b:a", d.Bitrate,
			"-f", "webm",
		)
	case ContainerOggVorbis:
		args = append(args,
			"-ar", sampleRate,
			"-c:a", "libvorbis",
			"-b:a", d.Bitrate,
			"-f", "ogg",
		)
	default:
		return nil, fmt.Errorf("unsupported container: %v", d.Container)
	}
	return append(args, "pipe:1"), nil
}

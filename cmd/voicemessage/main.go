package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/backends/ffmpeg"
	_ "github.com/xaionaro-go/voicemessage/pkg/voicemessage/backends/oto"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/backends/portaudio"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/backends/pulseaudio"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/uploader"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	backend := pflag.String("backend", "auto", "Capture backend: auto, ffmpeg, pulseaudio or portaudio")
	container := pflag.String("container", ffmpeg.ContainerWebMOpus.String(), "Container produced by the ffmpeg backend: webm or ogg")
	sampleRate := pflag.Uint32("sample-rate", uint32(voicemessage.DefaultConstraints.SampleRate), "Requested sample rate")
	channels := pflag.Uint32("channels", uint32(voicemessage.DefaultConstraints.Channels), "Requested amount of channels")
	duration := pflag.Duration("duration", 0, "Stop recording automatically after this duration (0 means wait for Enter or Ctrl+C)")
	outputPath := pflag.String("output", "", "Also write the recording to this file")
	preview := pflag.Bool("preview", false, "Play the recording back before uploading it")
	upload := pflag.Bool("upload", false, "Upload the recording")
	endpoint := pflag.String("endpoint", "http://localhost:8000", "Base URL of the site accepting voice messages")
	csrfToken := pflag.String("csrf-token", "", "CSRF token of the session")
	wishID := pflag.String("wish-id", "", "ID of the wish the voice message belongs to")
	retries := pflag.Uint("retries", 3, "How many times to offer to retry a failed upload")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	constraints := voicemessage.DefaultConstraints
	constraints.SampleRate = voicemessage.SampleRate(*sampleRate)
	constraints.Channels = voicemessage.Channel(*channels)

	opts := voicemessage.Options{
		voicemessage.OptionConstraints(constraints),
	}
	if *upload {
		u, err := uploader.New(ctx, *endpoint)
		assertNoError(err)
		opts = append(opts, voicemessage.OptionUploader{Uploader: u})
	}

	recorder, err := newRecorder(ctx, *backend, *container, opts)
	assertNoError(err)
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the recorder: %v", err)
		}
	}()

	lines := readLines(ctx)

	err = recorder.Start(ctx)
	assertNoError(err)
	fmt.Fprintln(os.Stderr, "Recording... press Enter to stop.")

	waitForStop(ctx, recorder, lines, *duration)

	artifact, err := recorder.Stop(ctx)
	assertNoError(err)
	fmt.Fprintf(os.Stderr, "\rRecorded %s (%d bytes, %s)\n", voicemessage.FormatDuration(recorder.Elapsed()), artifact.Len(), artifact.MIMEType())

	if *outputPath != "" {
		assertNoError(writeArtifact(ctx, *outputPath, artifact))
	}

	if *preview {
		if err := playArtifact(ctx, artifact); err != nil {
			logger.Errorf(ctx, "unable to preview the recording: %v", err)
		}
	}

	if !*upload {
		return
	}
	if !uploadWithRetries(ctx, recorder, lines, *retries, voicemessage.UploadMetadata{
		WishID: *wishID,
	}, voicemessage.Credentials{
		CSRFToken: *csrfToken,
	}) {
		belt.Flush(ctx)
		os.Exit(1)
	}
}

func newRecorder(
	ctx context.Context,
	backend string,
	containerName string,
	opts voicemessage.Options,
) (*voicemessage.Recorder, error) {
	container, err := ffmpeg.ParseContainer(containerName)
	if err != nil {
		return nil, err
	}

	var recorder *voicemessage.Recorder
	switch backend {
	case "auto":
		recorder = voicemessage.NewRecorderAuto(ctx, opts...)
	case "ffmpeg":
		device, err := ffmpeg.NewCaptureDevice()
		if err != nil {
			return nil, err
		}
		recorder = voicemessage.NewRecorder(device, opts...)
	case "pulseaudio":
		device, err := pulseaudio.NewCaptureDevice()
		if err != nil {
			return nil, err
		}
		recorder = voicemessage.NewRecorder(device, opts...)
	case "portaudio":
		device, err := portaudio.NewCaptureDevice()
		if err != nil {
			return nil, err
		}
		recorder = voicemessage.NewRecorder(device, opts...)
	default:
		return nil, fmt.Errorf("unknown backend '%s'", backend)
	}

	if device, ok := recorder.CaptureDevice.(*ffmpeg.CaptureDevice); ok {
		device.Container = container
	}
	logger.Debugf(ctx, "using capture device %T", recorder.CaptureDevice)
	return recorder, nil
}

func readLines(ctx context.Context) <-chan string {
	ch := make(chan string)
	observability.Go(ctx, func() {
		defer close(ch)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	})
	return ch
}

func waitForStop(
	ctx context.Context,
	recorder *voicemessage.Recorder,
	lines <-chan string,
	duration time.Duration,
) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-lines:
			return
		case sig := <-signals:
			logger.Debugf(ctx, "received signal %v", sig)
			return
		case <-deadline:
			return
		case <-t.C:
			if recorder.State() != voicemessage.StateRecording {
				logger.Warnf(ctx, "the recording finished on its own")
				return
			}
			fmt.Fprintf(os.Stderr, "\r%s", voicemessage.FormatDuration(recorder.Elapsed()))
		}
	}
}

func writeArtifact(
	ctx context.Context,
	path string,
	artifact *voicemessage.Artifact,
) (_err error) {
	logger.Tracef(ctx, "writeArtifact(%s)", path)
	defer func() { logger.Tracef(ctx, "/writeArtifact(%s): %v", path, _err) }()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create '%s': %w", path, err)
	}
	wc := datacounter.NewWriterCounter(f)
	_, err = artifact.Reader().WriteTo(wc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("unable to write '%s': %w", path, err)
	}
	logger.Infof(ctx, "written %d bytes to '%s'", wc.Count(), path)
	return nil
}

func playArtifact(
	ctx context.Context,
	artifact *voicemessage.Artifact,
) error {
	player := voicemessage.NewPlayerAuto(ctx)
	defer player.Close()

	stream, err := player.Preview(ctx, artifact)
	if err != nil {
		return err
	}
	defer stream.Close()
	return stream.Drain()
}

func uploadWithRetries(
	ctx context.Context,
	recorder *voicemessage.Recorder,
	lines <-chan string,
	retries uint,
	metadata voicemessage.UploadMetadata,
	credentials voicemessage.Credentials,
) bool {
	for attempt := uint(0); ; attempt++ {
		outcome, err := recorder.Upload(ctx, metadata, credentials)
		if err == nil {
			fmt.Fprintln(os.Stderr, outcome.Message)
			if err := recorder.Reset(); err != nil {
				logger.Errorf(ctx, "unable to reset the recorder: %v", err)
			}
			return true
		}

		if outcome.Message != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", outcome.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if attempt >= retries {
			return false
		}

		fmt.Fprint(os.Stderr, "Retry? [y/N] ")
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok || !strings.EqualFold(strings.TrimSpace(line), "y") {
				return false
			}
		}
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}

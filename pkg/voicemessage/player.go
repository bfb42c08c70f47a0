package voicemessage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const BufferSize = 100 * time.Millisecond

// Player plays recordings back, so they can be checked before uploading.
// Encoded recordings without a built-in decoder go through Decoders.
type Player struct {
	PlayerPCM
	Decoders []Decoder
}

func NewPlayer(
	playerPCM PlayerPCM,
	decoders ...Decoder,
) *Player {
	return &Player{
		PlayerPCM: playerPCM,
		Decoders:  decoders,
	}
}

var (
	lastSuccessfulPlayerFactory       registry.PlayerPCMFactory
	lastSuccessfulPlayerFactoryLocker sync.Mutex
)

func getLastSuccessfulPlayerFactory() registry.PlayerPCMFactory {
	lastSuccessfulPlayerFactoryLocker.Lock()
	defer lastSuccessfulPlayerFactoryLocker.Unlock()
	return lastSuccessfulPlayerFactory
}

func NewPlayerAuto(
	ctx context.Context,
) *Player {
	decoders := newDecodersAuto(ctx)

	factory := getLastSuccessfulPlayerFactory()
	if factory != nil {
		player, err := factory.NewPlayerPCM()
		if err == nil {
			if err := player.Ping(ctx); err == nil {
				return NewPlayer(player, decoders...)
			}
			_ = player.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.PlayerFactories() {
		player, err := factory.NewPlayerPCM()
		logger.Debugf(ctx, "initializing player %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = player.Ping(ctx)
		logger.Debugf(ctx, "pinging PCM player %T result is %v", player, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", player, err))
			_ = player.Close()
			continue
		}

		lastSuccessfulPlayerFactoryLocker.Lock()
		defer lastSuccessfulPlayerFactoryLocker.Unlock()
		lastSuccessfulPlayerFactory = factory
		return NewPlayer(player, decoders...)
	}

	logger.Infof(ctx, "was unable to initialize any PCM player: %v", mErr.ErrorOrNil())
	return NewPlayer(PlayerPCMDummy{}, decoders...)
}

func newDecodersAuto(ctx context.Context) []Decoder {
	var decoders []Decoder
	for _, factory := range registry.DecoderFactories() {
		decoder, err := factory.NewDecoder()
		logger.Debugf(ctx, "initializing decoder %T result is %v", factory, err)
		if err != nil {
			continue
		}
		decoders = append(decoders, decoder)
	}
	return decoders
}

// Preview starts playing the artifact. Raw PCM and Ogg/Vorbis recordings
// are played directly, anything else needs a Decoder supporting it.
func (p *Player) Preview(
	ctx context.Context,
	artifact *Artifact,
) (_ PlayStream, _err error) {
	logger.Tracef(ctx, "Preview")
	defer func() { logger.Tracef(ctx, "/Preview: %v", _err) }()

	switch types.MediaType(artifact.MIMEType()) {
	case "audio/x-raw":
		format, sampleRate, channels, err := types.ParsePCMMIMEType(artifact.MIMEType())
		if err != nil {
			return nil, fmt.Errorf("unable to parse the PCM description: %w", err)
		}
		return p.PlayPCM(ctx, sampleRate, channels, format, BufferSize, artifact.Reader())
	case "audio/ogg":
		return p.PlayVorbis(ctx, artifact.Reader())
	}

	for _, decoder := range p.Decoders {
		if decoder.SupportsMIMEType(artifact.MIMEType()) {
			return p.PlayDecoded(ctx, decoder, artifact)
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrPreviewUnsupported, artifact.MIMEType())
}

func (p *Player) PlayDecoded(
	ctx context.Context,
	decoder Decoder,
	artifact *Artifact,
) (PlayStream, error) {
	decoded, err := decoder.DecodePCM(ctx, artifact.MIMEType(), artifact.Reader())
	if err != nil {
		return nil, fmt.Errorf("unable to decode '%s' with %T: %w", artifact.MIMEType(), decoder, err)
	}

	stream, err := p.PlayerPCM.PlayPCM(
		ctx,
		decoded.SampleRate,
		decoded.Channels,
		decoded.Format,
		BufferSize,
		decoded,
	)
	if err != nil {
		_ = decoded.Close()
		return nil, fmt.Errorf("unable to playback as PCM: %w", err)
	}
	return &decodedPlayStream{
		PlayStream: stream,
		decoded:    decoded,
	}, nil
}

// decodedPlayStream also releases the decoder when closed.
type decodedPlayStream struct {
	PlayStream
	decoded io.Closer
}

func (s *decodedPlayStream) Close() error {
	var mErr *multierror.Error
	if err := s.PlayStream.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close the play stream: %w", err))
	}
	if err := s.decoded.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close the decoder: %w", err))
	}
	return mErr.ErrorOrNil()
}

func (p *Player) PlayVorbis(
	ctx context.Context,
	rawReader io.Reader,
) (PlayStream, error) {
	oggReader, err := oggvorbis.NewReader(rawReader)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}

	stream, err := p.PlayerPCM.PlayPCM(
		ctx,
		SampleRate(oggReader.SampleRate()),
		Channel(oggReader.Channels()),
		PCMFormatFloat32LE,
		BufferSize,
		newReaderFromFloat32Reader(oggReader),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to playback as PCM: %w", err)
	}
	return stream, nil
}

func (p *Player) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	bufferSize time.Duration,
	pcmReader io.Reader,
) (PlayStream, error) {
	return p.PlayerPCM.PlayPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		bufferSize,
		pcmReader,
	)
}

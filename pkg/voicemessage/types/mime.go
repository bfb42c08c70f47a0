package types

import (
	"fmt"
	"mime"
	"strconv"
	"strings"
)

const (
	MIMETypeWebMOpus   = "audio/webm;codecs=opus"
	MIMETypeOggVorbis  = "audio/ogg;codecs=vorbis"
	mediaTypeRawPCM    = "audio/x-raw"
	mediaTypeWebM      = "audio/webm"
	mediaTypeOgg       = "audio/ogg"
	fileExtensionRaw   = ".raw"
	fileExtensionWebM  = ".webm"
	fileExtensionOgg   = ".ogg"
	fileExtensionOther = ".bin"
)

// PCMMIMEType describes raw interleaved PCM audio in the
// "audio/x-raw;channels=..;format=..;rate=.." form.
func PCMMIMEType(
	format PCMFormat,
	sampleRate SampleRate,
	channels Channel,
) string {
	return mime.FormatMediaType(mediaTypeRawPCM, map[string]string{
		"format":   format.String(),
		"rate":     strconv.FormatUint(uint64(sampleRate), 10),
		"channels": strconv.FormatUint(uint64(channels), 10),
	})
}

// ParsePCMMIMEType is the reverse of PCMMIMEType.
func ParsePCMMIMEType(mimeType string) (PCMFormat, SampleRate, Channel, error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return PCMFormatUndefined, 0, 0, fmt.Errorf("unable to parse MIME type '%s': %w", mimeType, err)
	}
	if mediaType != mediaTypeRawPCM {
		return PCMFormatUndefined, 0, 0, fmt.Errorf("MIME type '%s' is not '%s'", mediaType, mediaTypeRawPCM)
	}

	format, err := ParsePCMFormat(params["format"])
	if err != nil {
		return PCMFormatUndefined, 0, 0, err
	}
	rate, err := strconv.ParseUint(params["rate"], 10, 32)
	if err != nil || rate == 0 {
		return PCMFormatUndefined, 0, 0, fmt.Errorf("invalid sample rate '%s'", params["rate"])
	}
	channels, err := strconv.ParseUint(params["channels"], 10, 32)
	if err != nil || channels == 0 {
		return PCMFormatUndefined, 0, 0, fmt.Errorf("invalid channel count '%s'", params["channels"])
	}
	return format, SampleRate(rate), Channel(channels), nil
}

// MediaType returns the MIME type without parameters, lowercased.
func MediaType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType, _, _ = strings.Cut(mimeType, ";")
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mediaType
}

func FileExtension(mimeType string) string {
	switch MediaType(mimeType) {
	case mediaTypeWebM:
		return fileExtensionWebM
	case mediaTypeOgg:
		return fileExtensionOgg
	case mediaTypeRawPCM:
		return fileExtensionRaw
	default:
		return fileExtensionOther
	}
}

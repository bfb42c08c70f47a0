package voicemessage

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

var (
	ErrDeviceUnavailable  = types.ErrDeviceUnavailable
	ErrUploadNetwork      = errors.New("unable to deliver the voice message")
	ErrUploadRejected     = errors.New("the voice message was rejected")
	ErrNoArtifact         = errors.New("no recording to upload")
	ErrNoUploader         = errors.New("no uploader is configured")
	ErrPreviewUnsupported = errors.New("preview is not supported for this recording format")
	ErrStartInProgress    = errors.New("the capture device is being acquired already")
	ErrClosed             = errors.New("the recorder is closed")
)

// UploadRejectedError is returned when the endpoint answered, but did
// not accept the voice message.
type UploadRejectedError struct {
	StatusCode int
	Message    string
}

func (e *UploadRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: %d %s", ErrUploadRejected, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%v (%d): %s", ErrUploadRejected, e.StatusCode, e.Message)
}

func (e *UploadRejectedError) Is(target error) bool {
	return target == ErrUploadRejected
}

func deviceUnavailable(err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

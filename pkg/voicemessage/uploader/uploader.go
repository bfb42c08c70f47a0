package uploader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/go-resty/resty/v2"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage"
)

const (
	DefaultPath         = "/save-voice/"
	FieldVoiceRecording = "voice_recording"
	FieldWishID         = "wish_id"
	HeaderCSRFToken     = "X-CSRFToken"
	CookieCSRFToken     = "csrftoken"
)

// Uploader posts voice messages to a save-voice endpoint.
type Uploader struct {
	Client *resty.Client
	URL    string
}

var _ voicemessage.Uploader = (*Uploader)(nil)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func New(
	ctx context.Context,
	baseURL string,
	opts ...Option,
) (*Uploader, error) {
	cfg := Options(opts).config()

	endpoint, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL '%s': %w", baseURL, err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("URL '%s' has no scheme or host", baseURL)
	}
	endpoint = endpoint.JoinPath(cfg.Path)
	if strings.HasSuffix(cfg.Path, "/") && !strings.HasSuffix(endpoint.Path, "/") {
		endpoint.Path += "/"
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetLogger(restyLogger{ctx: ctx})
	client.SetTimeout(cfg.Timeout)

	return &Uploader{
		Client: client,
		URL:    endpoint.String(),
	}, nil
}

// Upload makes exactly one attempt. Network failures match
// voicemessage.ErrUploadNetwork; refusals by the endpoint are
// *voicemessage.UploadRejectedError and keep the server message intact.
func (u *Uploader) Upload(
	ctx context.Context,
	artifact *voicemessage.Artifact,
	metadata voicemessage.UploadMetadata,
	credentials voicemessage.Credentials,
) (_ret voicemessage.UploadOutcome, _err error) {
	logger.Tracef(ctx, "Upload(%s, %d bytes)", u.URL, artifact.Len())
	defer func() { logger.Tracef(ctx, "/Upload(%s, %d bytes): %v %v", u.URL, artifact.Len(), _ret, _err) }()

	var result response
	req := u.Client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetMultipartField(FieldVoiceRecording, artifact.FileName(), artifact.MIMEType(), artifact.Reader()).
		SetResult(&result).
		SetError(&result)
	if metadata.WishID != "" {
		req.SetFormData(map[string]string{
			FieldWishID: metadata.WishID,
		})
	}
	if credentials.CSRFToken != "" {
		req.SetHeader(HeaderCSRFToken, credentials.CSRFToken)
		req.SetCookie(&http.Cookie{
			Name:  CookieCSRFToken,
			Value: credentials.CSRFToken,
		})
	}

	resp, err := req.Post(u.URL)
	if resp == nil || resp.RawResponse == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return voicemessage.UploadOutcome{}, fmt.Errorf("%w: %w", voicemessage.ErrUploadNetwork, err)
	}
	if err != nil {
		logger.Warnf(ctx, "unable to process the response (status %d): %v", resp.StatusCode(), err)
	}

	outcome := voicemessage.UploadOutcome{
		Success: resp.IsSuccess() && result.Success,
		Message: result.Message,
	}
	if outcome.Success {
		return outcome, nil
	}

	rejectErr := &voicemessage.UploadRejectedError{
		StatusCode: resp.StatusCode(),
		Message:    result.Message,
	}
	if rejectErr.Message == "" && err != nil {
		rejectErr.Message = fmt.Sprintf("malformed response: %v", err)
	}
	return outcome, rejectErr
}

type restyLogger struct {
	ctx context.Context
}

var _ resty.Logger = restyLogger{}

func (l restyLogger) Errorf(format string, v ...any) {
	logger.Errorf(l.ctx, format, v...)
}

func (l restyLogger) Warnf(format string, v ...any) {
	logger.Warnf(l.ctx, format, v...)
}

func (l restyLogger) Debugf(format string, v ...any) {
	logger.Debugf(l.ctx, format, v...)
}

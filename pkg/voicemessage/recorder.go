package voicemessage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/registry"
)

type UploadMetadata struct {
	WishID string
}

type Credentials struct {
	CSRFToken string
}

type UploadOutcome struct {
	Success bool
	Message string
}

type Uploader interface {
	Upload(
		ctx context.Context,
		artifact *Artifact,
		metadata UploadMetadata,
		credentials Credentials,
	) (UploadOutcome, error)
}

// Recorder drives a single voice message through
// Idle -> Recording -> Stopped, and uploads the result.
type Recorder struct {
	CaptureDevice
	Config

	locker   sync.Mutex
	state    State
	starting bool
	closed   bool
	session  *captureSession
}

type captureSession struct {
	handle        CaptureHandle
	released      bool
	mimeType      string
	fragments     []Fragment
	stopRequested bool
	startedAt     time.Time
	stoppedAt     time.Time

	// artifact is set before finalized is closed
	artifact  *Artifact
	finalized chan struct{}
}

func NewRecorder(
	captureDevice CaptureDevice,
	opts ...Option,
) *Recorder {
	return &Recorder{
		CaptureDevice: captureDevice,
		Config:        Options(opts).config(),
	}
}

var (
	lastSuccessfulCaptureFactory       registry.CaptureDeviceFactory
	lastSuccessfulCaptureFactoryLocker sync.Mutex
)

func getLastSuccessfulCaptureFactory() registry.CaptureDeviceFactory {
	lastSuccessfulCaptureFactoryLocker.Lock()
	defer lastSuccessfulCaptureFactoryLocker.Unlock()
	return lastSuccessfulCaptureFactory
}

func setLastSuccessfulCaptureFactory(factory registry.CaptureDeviceFactory) {
	lastSuccessfulCaptureFactoryLocker.Lock()
	defer lastSuccessfulCaptureFactoryLocker.Unlock()
	lastSuccessfulCaptureFactory = factory
}

// NewRecorderAuto uses the first registered capture backend that works.
// If none works, the Recorder is backed by CaptureDeviceDummy and Start
// fails with ErrDeviceUnavailable.
func NewRecorderAuto(
	ctx context.Context,
	opts ...Option,
) *Recorder {
	factory := getLastSuccessfulCaptureFactory()
	if factory != nil {
		device, err := factory.NewCaptureDevice()
		if err == nil {
			if err := device.Ping(ctx); err == nil {
				return NewRecorder(device, opts...)
			}
			_ = device.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.CaptureFactories() {
		device, err := factory.NewCaptureDevice()
		logger.Debugf(ctx, "initializing capture device %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = device.Ping(ctx)
		logger.Debugf(ctx, "pinging capture device %T result is %v", device, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", device, err))
			_ = device.Close()
			continue
		}

		setLastSuccessfulCaptureFactory(factory)
		return NewRecorder(device, opts...)
	}

	logger.Infof(ctx, "was unable to initialize any capture device: %v", mErr.ErrorOrNil())
	return NewRecorder(CaptureDeviceDummy{}, opts...)
}

func (r *Recorder) State() State {
	r.locker.Lock()
	defer r.locker.Unlock()
	return r.state
}

// Artifact returns the recording of the last finished session, or nil.
func (r *Recorder) Artifact() *Artifact {
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.state != StateStopped {
		return nil
	}
	return r.session.artifact
}

// Elapsed is the duration of the current session; it stops growing
// once the session is finalized.
func (r *Recorder) Elapsed() time.Duration {
	r.locker.Lock()
	defer r.locker.Unlock()
	switch r.state {
	case StateRecording:
		return r.Clock().Sub(r.session.startedAt)
	case StateStopped:
		return r.session.stoppedAt.Sub(r.session.startedAt)
	default:
		return 0
	}
}

// Start acquires the capture device and begins buffering fragments.
// Calling it while already recording does nothing. Calling it after a
// recording was stopped discards that recording. If a stop is still
// being finalized, Start waits for it first.
//
// The locker is not held while the device is acquired.
func (r *Recorder) Start(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()

	r.locker.Lock()
	for {
		if r.closed {
			r.locker.Unlock()
			return ErrClosed
		}
		if r.starting {
			r.locker.Unlock()
			return ErrStartInProgress
		}
		if r.state != StateRecording {
			break
		}
		session := r.session
		if !session.stopRequested {
			r.locker.Unlock()
			logger.Debugf(ctx, "already recording, ignoring the request to start")
			return nil
		}
		r.locker.Unlock()
		logger.Debugf(ctx, "waiting for the previous recording to finalize")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.finalized:
		}
		r.locker.Lock()
	}
	r.starting = true
	r.locker.Unlock()

	handle, err := r.CaptureDevice.Acquire(ctx, r.Constraints)

	r.locker.Lock()
	defer r.locker.Unlock()
	r.starting = false

	if err != nil {
		return deviceUnavailable(fmt.Errorf("unable to acquire %T: %w", r.CaptureDevice, err))
	}
	if handle == nil {
		return deviceUnavailable(fmt.Errorf("%T returned no capture handle", r.CaptureDevice))
	}
	if r.closed {
		if err := handle.Close(); err != nil {
			logger.Errorf(ctx, "unable to release the capture device: %v", err)
		}
		return ErrClosed
	}
	logger.Debugf(ctx, "acquired %T, MIME type: '%s'", handle, handle.MIMEType())

	session := &captureSession{
		handle:    handle,
		mimeType:  handle.MIMEType(),
		startedAt: r.Clock(),
		finalized: make(chan struct{}),
	}
	r.session = session
	r.state = StateRecording

	observability.Go(ctx, func() {
		defer close(session.finalized)
		r.captureLoop(ctx, session)
	})
	return nil
}

func (r *Recorder) captureLoop(
	ctx context.Context,
	session *captureSession,
) {
	logger.Debugf(ctx, "captureLoop")
	defer logger.Debugf(ctx, "/captureLoop")

	for fragment := range session.handle.Fragments() {
		if len(fragment) == 0 {
			continue
		}
		logger.Tracef(ctx, "received a fragment of size %d", len(fragment))
		r.locker.Lock()
		session.fragments = append(session.fragments, fragment)
		r.locker.Unlock()
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	r.finalize(ctx, session)
}

func (r *Recorder) finalize(
	ctx context.Context,
	session *captureSession,
) {
	if !session.stopRequested {
		logger.Warnf(ctx, "the capture device finished the session on its own")
	}
	if err := session.release(); err != nil {
		logger.Errorf(ctx, "unable to release the capture device: %v", err)
	}
	session.stoppedAt = r.Clock()
	session.artifact = newArtifactFromFragments(session.fragments, session.mimeType, session.stoppedAt)
	logger.Debugf(ctx, "finalized a recording of %d bytes out of %d fragments", session.artifact.Len(), len(session.fragments))
	r.state = StateStopped
}

// Stop asks the device to finish and waits until every fragment is
// collected. If the Recorder is not recording, it returns the last
// artifact (if any) and does nothing else.
func (r *Recorder) Stop(ctx context.Context) (_ret *Artifact, _err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	r.locker.Lock()
	if r.state != StateRecording {
		logger.Debugf(ctx, "not recording (state: %s), ignoring the request to stop", r.state)
		var artifact *Artifact
		if r.state == StateStopped {
			artifact = r.session.artifact
		}
		r.locker.Unlock()
		return artifact, nil
	}
	session := r.session
	err := r.requestStop(session)
	r.locker.Unlock()
	if err != nil {
		return nil, fmt.Errorf("unable to request the capture device to stop: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-session.finalized:
	}
	return session.artifact, nil
}

// release closes the handle once; it must be called with the locker held.
func (session *captureSession) release() error {
	if session.released {
		return nil
	}
	session.released = true
	return session.handle.Close()
}

// requestStop must be called with the locker held.
func (r *Recorder) requestStop(session *captureSession) error {
	if session.stopRequested {
		return nil
	}
	if err := session.handle.RequestStop(); err != nil {
		return err
	}
	session.stopRequested = true
	return nil
}

// Upload sends the last recording. The recording is kept regardless of
// the result, so Upload may be called again.
func (r *Recorder) Upload(
	ctx context.Context,
	metadata UploadMetadata,
	credentials Credentials,
) (_ret UploadOutcome, _err error) {
	logger.Tracef(ctx, "Upload")
	defer func() { logger.Tracef(ctx, "/Upload: %v %v", _ret, _err) }()

	artifact := r.Artifact()
	if artifact == nil {
		return UploadOutcome{}, ErrNoArtifact
	}
	if r.Uploader == nil {
		return UploadOutcome{}, ErrNoUploader
	}

	outcome, err := r.Uploader.Upload(ctx, artifact, metadata, credentials)
	if err != nil {
		logger.Warnf(ctx, "unable to upload the voice message (%d bytes): %v", artifact.Len(), err)
		return outcome, err
	}
	logger.Debugf(ctx, "uploaded the voice message: %q", outcome.Message)
	return outcome, nil
}

// Reset forgets the last recording and returns the Recorder to Idle.
func (r *Recorder) Reset() error {
	r.locker.Lock()
	defer r.locker.Unlock()
	switch r.state {
	case StateRecording:
		return fmt.Errorf("unable to reset while recording")
	case StateStopped:
		r.session = nil
		r.state = StateIdle
	}
	return nil
}

// Close finishes an active session (if any) and closes the capture device.
// If the device refuses to stop, the session is released without waiting
// for the remaining fragments.
func (r *Recorder) Close() error {
	ctx := context.TODO()
	var mErr *multierror.Error

	r.locker.Lock()
	r.closed = true
	var session *captureSession
	if r.state == StateRecording {
		if err := r.requestStop(r.session); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to request the capture device to stop: %w", err))
			if err := r.session.release(); err != nil {
				mErr = multierror.Append(mErr, fmt.Errorf("unable to release the capture device: %w", err))
			}
		} else {
			session = r.session
		}
	}
	r.locker.Unlock()

	if session != nil {
		logger.Debugf(ctx, "waiting for the active session to finalize")
		<-session.finalized
	}

	if err := r.CaptureDevice.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close %T: %w", r.CaptureDevice, err))
	}
	return mErr.ErrorOrNil()
}

package voicemessage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type fakeHandle struct {
	fragments      chan Fragment
	flushOnStop    []Fragment
	ignoreStop     bool
	stopOnce       sync.Once
	stopCount      atomic.Int32
	closeCount     atomic.Int32
	mimeType       string
	requestStopErr error
}

func newFakeHandle(flushOnStop ...Fragment) *fakeHandle {
	return &fakeHandle{
		fragments:   make(chan Fragment),
		flushOnStop: flushOnStop,
		mimeType:    types.MIMETypeWebMOpus,
	}
}

func (h *fakeHandle) Fragments() <-chan Fragment {
	return h.fragments
}

func (h *fakeHandle) RequestStop() error {
	h.stopCount.Add(1)
	if h.requestStopErr != nil {
		return h.requestStopErr
	}
	if h.ignoreStop {
		return nil
	}
	h.stopOnce.Do(func() {
		go h.finish()
	})
	return nil
}

func (h *fakeHandle) finish() {
	for _, fragment := range h.flushOnStop {
		h.fragments <- fragment
	}
	close(h.fragments)
}

func (h *fakeHandle) MIMEType() string {
	return h.mimeType
}

func (h *fakeHandle) Close() error {
	h.closeCount.Add(1)
	return nil
}

type fakeDevice struct {
	locker          sync.Mutex
	handles         []*fakeHandle
	nextHandles     []*fakeHandle
	acquireErr      error
	lastConstraints Constraints
	closeCount      atomic.Int32
}

var _ CaptureDevice = (*fakeDevice)(nil)

func (d *fakeDevice) Close() error {
	d.closeCount.Add(1)
	return nil
}

func (d *fakeDevice) Ping(context.Context) error {
	return nil
}

func (d *fakeDevice) Acquire(_ context.Context, constraints Constraints) (CaptureHandle, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	d.lastConstraints = constraints
	var h *fakeHandle
	if len(d.nextHandles) > 0 {
		h, d.nextHandles = d.nextHandles[0], d.nextHandles[1:]
	} else {
		h = newFakeHandle()
	}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDevice) acquireCount() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return len(d.handles)
}

type fakeUploader struct {
	locker   sync.Mutex
	errs     []error
	received [][]byte
	metadata []UploadMetadata
}

func (u *fakeUploader) Upload(
	_ context.Context,
	artifact *Artifact,
	metadata UploadMetadata,
	credentials Credentials,
) (UploadOutcome, error) {
	u.locker.Lock()
	defer u.locker.Unlock()
	u.received = append(u.received, artifact.Bytes())
	u.metadata = append(u.metadata, metadata)
	if len(u.errs) > 0 {
		err := u.errs[0]
		u.errs = u.errs[1:]
		if err != nil {
			return UploadOutcome{Success: false}, err
		}
	}
	return UploadOutcome{Success: true, Message: "ok:" + credentials.CSRFToken}, nil
}

func TestRecorderConcatenatesInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle(Fragment("gh"), Fragment("i"))
	device := &fakeDevice{nextHandles: []*fakeHandle{handle}}
	r := NewRecorder(device)

	require.NoError(t, r.Start(ctx))
	require.Equal(t, StateRecording, r.State())
	require.Equal(t, DefaultConstraints, device.lastConstraints)

	for _, s := range []string{"a", "bc", "", "def"} {
		handle.fragments <- Fragment(s)
	}

	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	require.Equal(t, []byte("abcdefghi"), artifact.Bytes())
	require.Equal(t, types.MIMETypeWebMOpus, artifact.MIMEType())
	require.Equal(t, StateStopped, r.State())
	require.Equal(t, int32(1), handle.closeCount.Load())
	require.Equal(t, int32(1), handle.stopCount.Load())
	require.Same(t, artifact, r.Artifact())
}

func TestRecorderOrderPreservationRandomized(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(0))

	for iteration := 0; iteration < 50; iteration++ {
		t.Run(fmt.Sprintf("iteration%d", iteration), func(t *testing.T) {
			var (
				before, after []Fragment
				expected      bytes.Buffer
			)
			for i := rng.Intn(20); i > 0; i-- {
				fragment := make(Fragment, rng.Intn(64))
				rng.Read(fragment)
				before = append(before, fragment)
				expected.Write(fragment)
			}
			for i := rng.Intn(3); i > 0; i-- {
				fragment := make(Fragment, rng.Intn(64))
				rng.Read(fragment)
				after = append(after, fragment)
				expected.Write(fragment)
			}

			handle := newFakeHandle(after...)
			r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{handle}})
			require.NoError(t, r.Start(ctx))
			for _, fragment := range before {
				handle.fragments <- fragment
			}
			artifact, err := r.Stop(ctx)
			require.NoError(t, err)
			require.Equal(t, expected.Len(), artifact.Len())
			require.True(t, bytes.Equal(expected.Bytes(), artifact.Bytes()))
		})
	}
}

func TestRecorderStopWithoutFragments(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(&fakeDevice{})

	require.NoError(t, r.Start(ctx))
	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	require.Zero(t, artifact.Len())
	require.Empty(t, artifact.Bytes())
	require.Equal(t, StateStopped, r.State())
}

func TestRecorderStartWhileRecording(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle()
	device := &fakeDevice{nextHandles: []*fakeHandle{handle}}
	r := NewRecorder(device)

	require.NoError(t, r.Start(ctx))
	handle.fragments <- Fragment("first")
	require.NoError(t, r.Start(ctx))
	handle.fragments <- Fragment("second")

	require.Equal(t, 1, device.acquireCount())
	require.Equal(t, StateRecording, r.State())

	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("firstsecond"), artifact.Bytes())
}

func TestRecorderStartDeviceUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("plain_error", func(t *testing.T) {
		r := NewRecorder(&fakeDevice{acquireErr: errors.New("permission denied")})
		err := r.Start(ctx)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrDeviceUnavailable)
		require.Contains(t, err.Error(), "permission denied")
		require.Equal(t, StateIdle, r.State())
		require.Nil(t, r.Artifact())
	})

	t.Run("already_classified", func(t *testing.T) {
		r := NewRecorder(&fakeDevice{acquireErr: fmt.Errorf("%w: no microphone", ErrDeviceUnavailable)})
		require.ErrorIs(t, r.Start(ctx), ErrDeviceUnavailable)
		require.Equal(t, StateIdle, r.State())
	})

	t.Run("dummy", func(t *testing.T) {
		r := NewRecorder(CaptureDeviceDummy{})
		require.ErrorIs(t, r.Start(ctx), ErrDeviceUnavailable)
		require.Equal(t, StateIdle, r.State())
	})

	t.Run("stopped_session_survives", func(t *testing.T) {
		handle := newFakeHandle(Fragment("kept"))
		device := &fakeDevice{nextHandles: []*fakeHandle{handle}}
		r := NewRecorder(device)
		require.NoError(t, r.Start(ctx))
		_, err := r.Stop(ctx)
		require.NoError(t, err)

		device.acquireErr = errors.New("unplugged")
		require.ErrorIs(t, r.Start(ctx), ErrDeviceUnavailable)
		require.Equal(t, StateStopped, r.State())
		require.Equal(t, []byte("kept"), r.Artifact().Bytes())
	})
}

func TestRecorderStopWhenNotRecording(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(&fakeDevice{})

	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.Nil(t, artifact)
	require.Equal(t, StateIdle, r.State())

	require.NoError(t, r.Start(ctx))
	first, err := r.Stop(ctx)
	require.NoError(t, err)
	second, err := r.Stop(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestRecorderRestartDiscardsArtifact(t *testing.T) {
	ctx := context.Background()
	h0 := newFakeHandle(Fragment("old"))
	h1 := newFakeHandle()
	r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{h0, h1}})

	require.NoError(t, r.Start(ctx))
	_, err := r.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx))
	require.Nil(t, r.Artifact())
	h1.fragments <- Fragment("new")
	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), artifact.Bytes())
}

func TestRecorderDeviceFinishesOnItsOwn(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle()
	r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{handle}})

	require.NoError(t, r.Start(ctx))
	handle.fragments <- Fragment("partial")
	close(handle.fragments)

	require.Eventually(t, func() bool {
		return r.State() == StateStopped
	}, time.Second, time.Millisecond)
	require.Equal(t, []byte("partial"), r.Artifact().Bytes())
	require.Equal(t, int32(1), handle.closeCount.Load())
}

func TestRecorderStopCancelled(t *testing.T) {
	handle := newFakeHandle()
	handle.ignoreStop = true
	r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{handle}})
	require.NoError(t, r.Start(context.Background()))

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, err := r.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateRecording, r.State())

	// the device finishes later, the session is still finalized
	close(handle.fragments)
	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, artifact)
	require.Equal(t, int32(1), handle.stopCount.Load())
}

func TestRecorderRequestStopFailure(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle()
	handle.requestStopErr = errors.New("device is busy")
	r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{handle}})
	require.NoError(t, r.Start(ctx))

	_, err := r.Stop(ctx)
	require.Error(t, err)
	require.Equal(t, StateRecording, r.State())

	handle.requestStopErr = nil
	_, err = r.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, StateStopped, r.State())
}

func TestRecorderUpload(t *testing.T) {
	ctx := context.Background()
	networkErr := fmt.Errorf("%w: connection refused", ErrUploadNetwork)
	uploader := &fakeUploader{errs: []error{networkErr}}
	handle := newFakeHandle()
	r := NewRecorder(
		&fakeDevice{nextHandles: []*fakeHandle{handle}},
		OptionUploader{Uploader: uploader},
	)

	_, err := r.Upload(ctx, UploadMetadata{}, Credentials{})
	require.ErrorIs(t, err, ErrNoArtifact)

	require.NoError(t, r.Start(ctx))
	handle.fragments <- Fragment("hello")
	_, err = r.Upload(ctx, UploadMetadata{}, Credentials{})
	require.ErrorIs(t, err, ErrNoArtifact)
	_, err = r.Stop(ctx)
	require.NoError(t, err)

	outcome, err := r.Upload(ctx, UploadMetadata{WishID: "42"}, Credentials{CSRFToken: "tok"})
	require.ErrorIs(t, err, ErrUploadNetwork)
	require.False(t, outcome.Success)
	require.Equal(t, StateStopped, r.State())
	require.NotNil(t, r.Artifact())

	outcome, err = r.Upload(ctx, UploadMetadata{WishID: "42"}, Credentials{CSRFToken: "tok"})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, "ok:tok", outcome.Message)

	require.Len(t, uploader.received, 2)
	require.Equal(t, uploader.received[0], uploader.received[1])
	require.Equal(t, []byte("hello"), uploader.received[1])
	require.Equal(t, "42", uploader.metadata[1].WishID)

	require.NoError(t, r.Reset())
	require.Equal(t, StateIdle, r.State())
	_, err = r.Upload(ctx, UploadMetadata{}, Credentials{})
	require.ErrorIs(t, err, ErrNoArtifact)
}

func TestRecorderUploadWithoutUploader(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(&fakeDevice{})
	require.NoError(t, r.Start(ctx))
	_, err := r.Stop(ctx)
	require.NoError(t, err)
	_, err = r.Upload(ctx, UploadMetadata{}, Credentials{})
	require.ErrorIs(t, err, ErrNoUploader)
}

func TestRecorderElapsed(t *testing.T) {
	ctx := context.Background()
	var (
		locker sync.Mutex
		now    = time.Unix(1700000000, 0)
	)
	clock := func() time.Time {
		locker.Lock()
		defer locker.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		locker.Lock()
		defer locker.Unlock()
		now = now.Add(d)
	}

	r := NewRecorder(&fakeDevice{}, OptionClock(clock))
	assert.Zero(t, r.Elapsed())

	require.NoError(t, r.Start(ctx))
	advance(65 * time.Second)
	assert.Equal(t, 65*time.Second, r.Elapsed())
	assert.Equal(t, "01:05", FormatDuration(r.Elapsed()))

	_, err := r.Stop(ctx)
	require.NoError(t, err)
	advance(time.Hour)
	assert.Equal(t, 65*time.Second, r.Elapsed())
}

func TestRecorderResetWhileRecording(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(&fakeDevice{})
	require.NoError(t, r.Reset())
	require.NoError(t, r.Start(ctx))
	require.Error(t, r.Reset())
	require.Equal(t, StateRecording, r.State())
}

func TestRecorderClose(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle(Fragment("tail"))
	device := &fakeDevice{nextHandles: []*fakeHandle{handle}}
	r := NewRecorder(device)
	require.NoError(t, r.Start(ctx))

	require.NoError(t, r.Close())
	require.Equal(t, StateStopped, r.State())
	require.Equal(t, []byte("tail"), r.Artifact().Bytes())
	require.Equal(t, int32(1), handle.closeCount.Load())
	require.Equal(t, int32(1), device.closeCount.Load())
}

func TestRecorderCustomConstraints(t *testing.T) {
	ctx := context.Background()
	device := &fakeDevice{}
	constraints := Constraints{SampleRate: 48000, Channels: 2}
	r := NewRecorder(device, OptionConstraints(constraints))
	require.NoError(t, r.Start(ctx))
	require.Equal(t, constraints, device.lastConstraints)
	_, err := r.Stop(ctx)
	require.NoError(t, err)
}

func TestRecorderCloseWhenStopRequestFails(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle()
	handle.requestStopErr = errors.New("device is busy")
	device := &fakeDevice{nextHandles: []*fakeHandle{handle}}
	r := NewRecorder(device)
	require.NoError(t, r.Start(ctx))

	closeErr := make(chan error, 1)
	go func() {
		closeErr <- r.Close()
	}()
	select {
	case err := <-closeErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close is stuck waiting for a handle that was asked to stop and failed")
	}
	require.Equal(t, int32(1), handle.closeCount.Load())
	require.Equal(t, int32(1), device.closeCount.Load())

	// the handle completes its channel afterwards; it is not released twice
	close(handle.fragments)
	require.Eventually(t, func() bool {
		return r.State() == StateStopped
	}, time.Second, time.Millisecond)
	require.Equal(t, int32(1), handle.closeCount.Load())
}

type slowDevice struct {
	*fakeDevice
	entered chan struct{}
	release chan struct{}
}

func (d *slowDevice) Acquire(ctx context.Context, constraints Constraints) (CaptureHandle, error) {
	close(d.entered)
	<-d.release
	return d.fakeDevice.Acquire(ctx, constraints)
}

func TestRecorderIsResponsiveWhileAcquiring(t *testing.T) {
	ctx := context.Background()
	device := &slowDevice{
		fakeDevice: &fakeDevice{},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	r := NewRecorder(device)

	startErr := make(chan error, 1)
	go func() {
		startErr <- r.Start(ctx)
	}()
	<-device.entered

	require.Equal(t, StateIdle, r.State())
	require.Zero(t, r.Elapsed())
	artifact, err := r.Stop(ctx)
	require.NoError(t, err)
	require.Nil(t, artifact)
	require.ErrorIs(t, r.Start(ctx), ErrStartInProgress)

	close(device.release)
	require.NoError(t, <-startErr)
	require.Equal(t, StateRecording, r.State())
	require.Equal(t, 1, device.acquireCount())
}

func TestRecorderCloseWhileAcquiring(t *testing.T) {
	ctx := context.Background()
	device := &slowDevice{
		fakeDevice: &fakeDevice{},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	r := NewRecorder(device)

	startErr := make(chan error, 1)
	go func() {
		startErr <- r.Start(ctx)
	}()
	<-device.entered
	require.NoError(t, r.Close())

	close(device.release)
	require.ErrorIs(t, <-startErr, ErrClosed)
	require.Equal(t, StateIdle, r.State())
	require.Equal(t, int32(1), device.handles[0].closeCount.Load())
	require.ErrorIs(t, r.Start(ctx), ErrClosed)
}

func TestRecorderStartWaitsForPendingStop(t *testing.T) {
	first := newFakeHandle()
	first.ignoreStop = true
	second := newFakeHandle()
	device := &fakeDevice{nextHandles: []*fakeHandle{first, second}}
	r := NewRecorder(device)
	require.NoError(t, r.Start(context.Background()))

	stopCtx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, err := r.Stop(stopCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	startErr := make(chan error, 1)
	go func() {
		startErr <- r.Start(context.Background())
	}()
	select {
	case err := <-startErr:
		t.Fatalf("Start returned (%v) before the previous recording was finalized", err)
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 1, device.acquireCount())

	close(first.fragments)
	require.NoError(t, <-startErr)
	require.Equal(t, StateRecording, r.State())
	require.Equal(t, 2, device.acquireCount())

	second.fragments <- Fragment("new")
	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("new"), artifact.Bytes())
}

func TestRecorderStartWaitingForPendingStopIsCancellable(t *testing.T) {
	handle := newFakeHandle()
	handle.ignoreStop = true
	r := NewRecorder(&fakeDevice{nextHandles: []*fakeHandle{handle}})
	require.NoError(t, r.Start(context.Background()))

	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, err := r.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, r.Start(ctx), context.DeadlineExceeded)
	close(handle.fragments)
}

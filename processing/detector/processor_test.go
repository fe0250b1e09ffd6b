package processing

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objwatch/internal/config"
	"objwatch/internal/models"
	"objwatch/internal/tracker"
)

type fakeStreamer struct {
	stopOnce sync.Once

	frames   chan image.Image
	errs     chan error
	stopped  chan struct{}
	startErr error
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		frames:  make(chan image.Image),
		errs:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
}

func (f *fakeStreamer) Start() error                  { return f.startErr }
func (f *fakeStreamer) Stop()                         { f.stopOnce.Do(func() { close(f.stopped) }) }
func (f *fakeStreamer) FrameChan() <-chan image.Image { return f.frames }
func (f *fakeStreamer) ErrorChan() <-chan error       { return f.errs }

func (f *fakeStreamer) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

type fakeDetector struct {
	mu     sync.Mutex
	next   []models.Detection
	err    error
	vocabs [][]string
}

func (f *fakeDetector) set(dets []models.Detection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = dets
	f.err = err
}

func (f *fakeDetector) Detect(_ context.Context, _ image.Image, vocab []string) ([]models.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocabs = append(f.vocabs, vocab)
	out := make([]models.Detection, len(f.next))
	copy(out, f.next)
	return out, f.err
}

func (f *fakeDetector) Close() error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestProcessor(t *testing.T, labels ...string) (*Processor, *fakeDetector, *fakeClock) {
	t.Helper()

	trk, err := tracker.New(30)
	require.NoError(t, err)

	det := &fakeDetector{}
	clock := &fakeClock{now: t0}

	p := NewProcessor(config.NewDefaultConfig(), det, trk)
	p.now = clock.Now

	for _, l := range labels {
		_, err := p.AddLabel(l)
		require.NoError(t, err)
	}

	t.Cleanup(p.Stop)

	return p, det, clock
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

func sendFrame(t *testing.T, s *fakeStreamer) {
	t.Helper()
	select {
	case s.frames <- testFrame():
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not take the frame")
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestProcessorStartWithoutLabels(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	err := p.Start(context.Background(), newFakeStreamer())
	require.ErrorIs(t, err, ErrNoLabels)
	assert.False(t, p.IsActive())
}

func TestProcessorStartStreamerError(t *testing.T) {
	p, _, _ := newTestProcessor(t, "cat")

	s := newFakeStreamer()
	s.startErr = errors.New("no device")

	err := p.Start(context.Background(), s)
	require.Error(t, err)
	assert.False(t, p.IsActive())
}

func TestProcessorAlreadyRunning(t *testing.T) {
	p, _, _ := newTestProcessor(t, "cat")

	require.NoError(t, p.Start(context.Background(), newFakeStreamer()))
	assert.ErrorIs(t, p.Start(context.Background(), newFakeStreamer()), ErrAlreadyRunning)
}

func TestProcessorFeedsTracker(t *testing.T) {
	p, det, clock := newTestProcessor(t, "cat", "dog")
	det.set([]models.Detection{
		{Class: 1, Confidence: 0.9, Box: []float32{0.1, 0.1, 0.5, 0.5}},
		{Class: 0, Confidence: 0.1},
	}, nil)

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	sendFrame(t, s)
	snap := recv(t, p.Status())
	require.Len(t, snap, 2)

	clock.Set(t0.Add(10 * time.Second))
	det.set(nil, nil)
	sendFrame(t, s)
	snap = recv(t, p.Status())

	dog, ok := snap.Get("dog")
	require.True(t, ok)
	assert.Equal(t, 10, dog.Absence)

	// cat was below the confidence floor so it was never seen.
	cat, _ := snap.Get("cat")
	assert.Equal(t, 0, cat.Absence)

	det.mu.Lock()
	assert.Equal(t, []string{"cat", "dog"}, det.vocabs[0])
	det.mu.Unlock()

	frame := recv(t, p.Frames())
	assert.Equal(t, image.Rect(0, 0, 64, 48), frame.Bounds())
}

func TestProcessorStopsOnNotification(t *testing.T) {
	p, det, clock := newTestProcessor(t, "cat")
	det.set([]models.Detection{{Class: 0, Confidence: 0.9}}, nil)

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	sendFrame(t, s)
	recv(t, p.Status())

	det.set(nil, nil)
	clock.Set(t0.Add(31 * time.Second))
	sendFrame(t, s)

	n := recv(t, p.Notifications())
	assert.Equal(t, []string{"cat"}, n.MissingLabels)
	assert.Equal(t, 30, n.ThresholdSeconds)

	end := recv(t, p.Ended())
	assert.Equal(t, EndNotified, end.Reason)
	require.NotNil(t, end.Notification)
	assert.Equal(t, n.ID, end.Notification.ID)

	assert.True(t, s.isStopped())
	assert.False(t, p.IsActive())

	// Every timer was reset by the notification.
	st, _ := p.Snapshot().Get("cat")
	assert.Equal(t, 0, st.Absence)
}

func TestProcessorStreamClosed(t *testing.T) {
	p, _, _ := newTestProcessor(t, "cat")

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))
	close(s.frames)

	end := recv(t, p.Ended())
	assert.Equal(t, EndStreamClosed, end.Reason)
	assert.False(t, p.IsActive())
}

func TestProcessorStreamFailed(t *testing.T) {
	p, _, _ := newTestProcessor(t, "cat")

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	boom := errors.New("read error")
	s.errs <- boom

	end := recv(t, p.Ended())
	assert.Equal(t, EndStreamFailed, end.Reason)
	assert.ErrorIs(t, end.Err, boom)
	assert.True(t, s.isStopped())
}

func TestProcessorStop(t *testing.T) {
	p, _, _ := newTestProcessor(t, "cat")

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	p.Stop()
	p.Stop()

	end := recv(t, p.Ended())
	assert.Equal(t, EndStopped, end.Reason)
	assert.True(t, s.isStopped())
	assert.False(t, p.IsActive())

	// A new session can start after a stop.
	require.NoError(t, p.Start(context.Background(), newFakeStreamer()))
}

func TestProcessorDetectionErrorSkipsTracker(t *testing.T) {
	p, det, clock := newTestProcessor(t, "cat")
	det.set([]models.Detection{{Class: 0, Confidence: 0.9}}, nil)

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	sendFrame(t, s)
	recv(t, p.Status())

	det.set(nil, errors.New("offline"))
	clock.Set(t0.Add(time.Minute))
	sendFrame(t, s)
	recv(t, p.Frames())

	select {
	case <-p.Notifications():
		t.Fatal("tracker was fed on a failed detection")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, p.IsActive())
}

func TestProcessorAllLabelsRemovedMidSession(t *testing.T) {
	p, det, _ := newTestProcessor(t, "cat")

	s := newFakeStreamer()
	require.NoError(t, p.Start(context.Background(), s))

	_, err := p.RemoveLabel("cat")
	require.NoError(t, err)

	sendFrame(t, s)
	recv(t, p.Frames())

	det.mu.Lock()
	assert.Empty(t, det.vocabs)
	det.mu.Unlock()
}

func TestProcessorLabelMutations(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	labels, err := p.AddLabel("cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, labels)

	_, err = p.AddLabel("cat")
	assert.ErrorIs(t, err, tracker.ErrDuplicateLabel)

	require.NoError(t, p.SetThreshold(60))
	assert.Equal(t, 60, p.Threshold())
	assert.Equal(t, 60, p.cfg.GetAbsenceSeconds())

	assert.ErrorIs(t, p.SetThreshold(1), tracker.ErrInvalidThreshold)
	assert.Equal(t, 60, p.Threshold())

	_, err = p.RemoveLabel("cat")
	require.NoError(t, err)
	assert.Empty(t, p.Labels())
}

package processing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"objwatch/internal/config"
	"objwatch/internal/models"
	"objwatch/internal/tracker"
	"objwatch/processing/capture"
)

var (
	ErrNoLabels       = errors.New("no objects to track")
	ErrAlreadyRunning = errors.New("session already running")
)

type EndReason int

const (
	EndStopped EndReason = iota
	EndNotified
	EndStreamClosed
	EndStreamFailed
)

func (r EndReason) String() string {
	switch r {
	case EndStopped:
		return "stopped"
	case EndNotified:
		return "notified"
	case EndStreamClosed:
		return "stream closed"
	case EndStreamFailed:
		return "stream failed"
	default:
		return "unknown"
	}
}

// SessionEnd describes why a camera session ended.
type SessionEnd struct {
	SessionID    uuid.UUID
	Reason       EndReason
	Err          error
	Notification *tracker.Notification
}

type session struct {
	id       uuid.UUID
	streamer capture.VideoStreamer
	cancel   context.CancelFunc
	done     chan struct{}
}

// Processor runs camera sessions: one frame at a time it runs the detector,
// feeds the result into the tracker and publishes the annotated frame and
// the label statuses. A notification ends the session.
//
// The tracker is only touched under mu, so UI callbacks and the frame loop
// never interleave inside it.
type Processor struct {
	cfg *config.Config
	det Detector
	log *slog.Logger
	now func() time.Time

	mu  sync.Mutex
	trk *tracker.PresenceTracker

	runMu   sync.Mutex
	current *session

	frames        chan image.Image
	status        chan tracker.Snapshot
	notifications chan tracker.Notification
	ended         chan SessionEnd

	statMu  sync.RWMutex
	latency time.Duration
	fps     uint
}

func NewProcessor(cfg *config.Config, det Detector, trk *tracker.PresenceTracker) *Processor {
	return &Processor{
		cfg:           cfg,
		det:           det,
		trk:           trk,
		log:           slog.With("component", "processor"),
		now:           time.Now,
		frames:        make(chan image.Image, 1),
		status:        make(chan tracker.Snapshot, 1),
		notifications: make(chan tracker.Notification, 4),
		ended:         make(chan SessionEnd, 4),
	}
}

// Frames delivers annotated frames; only the latest one is kept.
func (p *Processor) Frames() <-chan image.Image { return p.frames }

// Status delivers the label statuses of the latest frame.
func (p *Processor) Status() <-chan tracker.Snapshot { return p.status }

func (p *Processor) Notifications() <-chan tracker.Notification { return p.notifications }

func (p *Processor) Ended() <-chan SessionEnd { return p.ended }

func (p *Processor) Latency() time.Duration {
	p.statMu.RLock()
	defer p.statMu.RUnlock()
	return p.latency
}

func (p *Processor) FPS() uint {
	p.statMu.RLock()
	defer p.statMu.RUnlock()
	return p.fps
}

func (p *Processor) IsActive() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.current != nil
}

func (p *Processor) AddLabel(text string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labels, err := p.trk.AddLabel(text)
	if err == nil {
		p.log.Info("label added", "label", labels[len(labels)-1], "tracked", len(labels))
	}
	return labels, err
}

func (p *Processor) RemoveLabel(text string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labels, err := p.trk.RemoveLabel(text)
	if err == nil {
		p.log.Info("label removed", "label", text, "tracked", len(labels))
	}
	return labels, err
}

func (p *Processor) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trk.Vocabulary().Labels()
}

func (p *Processor) SetThreshold(seconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.trk.SetAbsenceThreshold(seconds); err != nil {
		return err
	}
	p.cfg.SetAbsenceSeconds(seconds)
	p.log.Info("absence threshold changed", "seconds", seconds)

	return nil
}

func (p *Processor) Threshold() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trk.Threshold()
}

// Snapshot returns the label statuses as of now.
func (p *Processor) Snapshot() tracker.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trk.Snapshot(p.now())
}

// Start opens streamer and runs a session on it until Stop, a notification
// or the end of the stream.
func (p *Processor) Start(ctx context.Context, streamer capture.VideoStreamer) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.current != nil {
		return ErrAlreadyRunning
	}

	p.mu.Lock()
	empty := p.trk.Vocabulary().Empty()
	if !empty {
		p.trk.ResetSession()
	}
	p.mu.Unlock()

	if empty {
		return ErrNoLabels
	}

	if err := streamer.Start(); err != nil {
		return fmt.Errorf("start video source: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:       uuid.New(),
		streamer: streamer,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.current = s

	p.log.Info("session started", "session", s.id)

	go p.run(ctx, s)

	return nil
}

// Stop ends the running session, if any, and waits for it to finish.
func (p *Processor) Stop() {
	p.runMu.Lock()
	s := p.current
	p.current = nil
	p.runMu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	s.streamer.Stop()
	<-s.done
}

func (p *Processor) run(ctx context.Context, s *session) {
	end := SessionEnd{SessionID: s.id, Reason: EndStopped}

	defer func() {
		p.finish(s, end)
		close(s.done)
	}()

	frames := s.streamer.FrameChan()
	errs := s.streamer.ErrorChan()

	frameCount := uint(0)
	lastFPSUpdate := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			end.Reason = EndStreamFailed
			end.Err = err
			return

		case frame, ok := <-frames:
			if !ok {
				end.Reason = EndStreamClosed
				return
			}
			if frame == nil {
				continue
			}

			if n := p.processFrame(ctx, frame); n != nil {
				end.Reason = EndNotified
				end.Notification = n
				return
			}

			frameCount++
			if time.Since(lastFPSUpdate) >= time.Second {
				p.statMu.Lock()
				p.fps = frameCount
				p.statMu.Unlock()
				frameCount = 0
				lastFPSUpdate = time.Now()
			}
		}
	}
}

func (p *Processor) finish(s *session, end SessionEnd) {
	p.runMu.Lock()
	if p.current == s {
		p.current = nil
	}
	p.runMu.Unlock()

	s.cancel()
	s.streamer.Stop()

	p.mu.Lock()
	p.trk.ResetSession()
	p.mu.Unlock()

	p.statMu.Lock()
	p.fps = 0
	p.statMu.Unlock()

	if end.Err != nil {
		p.log.Warn("session ended", "session", s.id, "reason", end.Reason, "err", end.Err)
	} else {
		p.log.Info("session ended", "session", s.id, "reason", end.Reason)
	}

	select {
	case p.ended <- end:
	default:
		p.log.Warn("session end dropped, nobody listening", "session", s.id)
	}
}

// processFrame runs one tick. It returns the notification that ends the
// session, if one fired.
func (p *Processor) processFrame(ctx context.Context, frame image.Image) *tracker.Notification {
	start := time.Now()

	p.mu.Lock()
	vocab := p.trk.Vocabulary()
	p.mu.Unlock()

	out := toRGBA(frame)

	if vocab.Empty() {
		drawBanner(out, ErrNoLabels.Error())
		offer(p.frames, image.Image(out))
		return nil
	}

	dctx, cancel := ctx, context.CancelFunc(func() {})
	if t := p.cfg.Detector.Timeout; t > 0 {
		dctx, cancel = context.WithTimeout(ctx, t)
	}
	dets, err := p.det.Detect(dctx, frame, vocab.ModelLabels())
	cancel()

	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("detection failed", "err", err)
		}
		offer(p.frames, image.Image(out))
		return nil
	}

	dets = p.annotate(vocab, dets)

	p.mu.Lock()
	snap, n := p.trk.IngestDetections(p.now(), vocab.ResolveDetections(dets))
	p.mu.Unlock()

	drawDetections(out, dets)

	p.statMu.Lock()
	p.latency = time.Since(start)
	p.statMu.Unlock()

	offer(p.frames, image.Image(out))
	offer(p.status, snap)

	if n == nil {
		return nil
	}

	p.log.Info("objects missing", "labels", n.MissingLabels, "threshold", n.ThresholdSeconds, "notification", n.ID)

	select {
	case p.notifications <- *n:
	default:
		p.log.Warn("notification dropped, nobody listening", "notification", n.ID)
	}

	return n
}

// annotate drops low-confidence detections and names the rest through the
// vocabulary the detector saw. Placeholder hits are dropped too.
func (p *Processor) annotate(vocab tracker.Vocabulary, dets []models.Detection) []models.Detection {
	out := dets[:0]

	for _, d := range dets {
		if d.Confidence < p.cfg.Detector.MinConfidence {
			continue
		}
		label, ok := vocab.Resolve(d.Class)
		if !ok {
			continue
		}
		d.Label = label
		out = append(out, d)
	}

	return out
}

// offer replaces whatever is pending in ch with v.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}

	select {
	case ch <- v:
	default:
	}
}

package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"objwatch/internal/models"
)

var errReconnectBackoff = errors.New("detector offline, waiting to reconnect")

// classesMessage announces the vocabulary that following frames are
// detected against.
type classesMessage struct {
	Type    string   `json:"type"`
	Classes []string `json:"classes"`
}

type RemoteOptions struct {
	Prep           FramePrep
	Timeout        time.Duration
	ReconnectDelay time.Duration
}

// RemoteDetector talks to a detection server over a websocket. Each Detect
// sends one JPEG as a binary message and reads one JSON array of detections.
// The vocabulary is sent as a text message whenever it changes.
type RemoteDetector struct {
	serverURL string
	opts      RemoteOptions
	dialer    *websocket.Dialer
	log       *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sentVocab []string
	lastFail  time.Time
}

func NewRemoteDetector(host string, opts RemoteOptions) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	return &RemoteDetector{
		serverURL: u.String(),
		opts:      opts,
		dialer:    websocket.DefaultDialer,
		log:       slog.With("component", "detector", "backend", "websocket", "url", u.String()),
	}
}

func (d *RemoteDetector) Detect(ctx context.Context, frame image.Image, vocab []string) ([]models.Detection, error) {
	payload, err := d.opts.Prep.Encode(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	// Unblock a pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if !slices.Equal(vocab, d.sentVocab) {
		if err := conn.WriteJSON(classesMessage{Type: "classes", Classes: vocab}); err != nil {
			return nil, d.drop(fmt.Errorf("send classes: %w", err))
		}
		d.sentVocab = slices.Clone(vocab)
		d.log.Debug("vocabulary sent", "classes", len(vocab))
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, d.drop(fmt.Errorf("send frame: %w", err))
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, d.drop(ctx.Err())
		}
		return nil, d.drop(fmt.Errorf("read result: %w", err))
	}

	var results []models.Detection
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return results, nil
}

// connect returns the open connection or dials a new one. After a failure it
// refuses to dial again until ReconnectDelay has passed.
func (d *RemoteDetector) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	if !d.lastFail.IsZero() && time.Since(d.lastFail) < d.opts.ReconnectDelay {
		return nil, errReconnectBackoff
	}

	d.log.Info("connecting to detector server")

	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		d.lastFail = time.Now()
		return nil, fmt.Errorf("dial %s: %w", d.serverURL, err)
	}

	d.log.Info("connected to detector server")
	d.conn = conn
	d.sentVocab = nil
	d.lastFail = time.Time{}

	return conn, nil
}

func (d *RemoteDetector) drop(err error) error {
	d.log.Warn("connection lost", "err", err)
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.sentVocab = nil
	d.lastFail = time.Now()
	return err
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := d.conn.Close()
	d.conn = nil

	return err
}

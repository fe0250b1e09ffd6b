// Package tracker keeps per-label absence state for a stream of detection
// results and decides when a label counts as missing.
//
// A PresenceTracker is not safe for concurrent use. It performs no I/O and
// holds no resources, so it can be dropped or reset at any time.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"objwatch/internal/models"
)

const (
	MinThreshold     = 5
	MaxThreshold     = 300
	DefaultThreshold = 30
)

type PresenceTracker struct {
	vocab     Vocabulary
	lastSeen  map[string]time.Time
	notified  map[string]struct{}
	threshold int
}

// New returns a tracker with nothing tracked and the given threshold in seconds.
func New(threshold int) (*PresenceTracker, error) {
	if !validThreshold(threshold) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}

	return &PresenceTracker{
		lastSeen:  map[string]time.Time{placeholder: {}},
		notified:  map[string]struct{}{},
		threshold: threshold,
	}, nil
}

func validThreshold(s int) bool {
	return s >= MinThreshold && s <= MaxThreshold
}

func (t *PresenceTracker) Vocabulary() Vocabulary {
	return t.vocab
}

func (t *PresenceTracker) Threshold() int {
	return t.threshold
}

// LastSeen returns when label was last detected. ok is false for labels that
// are not tracked; a zero time means never.
func (t *PresenceTracker) LastSeen(label string) (ts time.Time, ok bool) {
	if !t.vocab.Contains(label) {
		return time.Time{}, false
	}
	ts, ok = t.lastSeen[label]
	return ts, ok
}

// Notified reports whether label already fired in the current episode.
func (t *PresenceTracker) Notified(label string) bool {
	_, ok := t.notified[label]
	return ok
}

// AddLabel starts tracking text and returns the tracked labels.
func (t *PresenceTracker) AddLabel(text string) ([]string, error) {
	label := strings.TrimSpace(text)
	if label == "" {
		return t.vocab.Labels(), ErrEmptyLabel
	}
	if label == placeholder || t.vocab.Contains(label) {
		return t.vocab.Labels(), fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}

	if t.vocab.Empty() {
		delete(t.lastSeen, placeholder)
		t.vocab = newVocabulary(label)
	} else {
		t.vocab = t.vocab.with(label)
	}
	t.lastSeen[label] = time.Time{}

	return t.vocab.Labels(), nil
}

// RemoveLabel stops tracking text and returns the tracked labels. Removing the
// last label puts the placeholder back in the detector vocabulary.
func (t *PresenceTracker) RemoveLabel(text string) ([]string, error) {
	label := strings.TrimSpace(text)
	if !t.vocab.Contains(label) {
		return t.vocab.Labels(), fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}

	t.vocab = t.vocab.without(label)
	delete(t.lastSeen, label)
	delete(t.notified, label)

	if t.vocab.Empty() {
		t.lastSeen[placeholder] = time.Time{}
	}

	return t.vocab.Labels(), nil
}

// SetAbsenceThreshold changes the threshold and reopens notification
// eligibility for every label, even when seconds equals the current value.
func (t *PresenceTracker) SetAbsenceThreshold(seconds int) error {
	if !validThreshold(seconds) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidThreshold, seconds, MinThreshold, MaxThreshold)
	}

	t.threshold = seconds
	clear(t.notified)

	return nil
}

// ResetSession clears notification state for a new camera session. Last-seen
// times are kept.
func (t *PresenceTracker) ResetSession() {
	clear(t.notified)
}

// ResolveDetections resolves dets against the current vocabulary.
func (t *PresenceTracker) ResolveDetections(dets []models.Detection) []string {
	return t.vocab.ResolveDetections(dets)
}

// Snapshot computes the status of every tracked label at now without
// changing any state.
func (t *PresenceTracker) Snapshot(now time.Time) Snapshot {
	snap := make(Snapshot, 0, t.vocab.Len())

	for _, label := range t.vocab.labels {
		absence := t.absence(label, now)
		snap = append(snap, LabelStatus{
			Label:     label,
			Absence:   absence,
			Threshold: t.threshold,
			Severity:  Classify(absence, t.threshold),
		})
	}

	return snap
}

// absence is whole seconds since label was seen, clamped to [0, threshold].
// A label that was never seen reports zero.
func (t *PresenceTracker) absence(label string, now time.Time) int {
	last := t.lastSeen[label]
	if last.IsZero() {
		return 0
	}

	secs := int(now.Sub(last) / time.Second)

	return min(max(secs, 0), t.threshold)
}

// IngestDetections feeds the labels detected on one frame. It returns the
// status of every label and at most one notification bundling every label
// that reached the threshold on this frame.
//
// When a notification fires, every label's last-seen time is reset to never
// and the notified set is cleared, not only those of the missing labels.
func (t *PresenceTracker) IngestDetections(now time.Time, detected []string) (Snapshot, *Notification) {
	for _, label := range detected {
		if t.vocab.Contains(label) {
			t.lastSeen[label] = now
		}
	}

	snap := t.Snapshot(now)

	var missing []string
	for _, st := range snap {
		if st.Absence < t.threshold {
			continue
		}
		if _, done := t.notified[st.Label]; done {
			continue
		}
		t.notified[st.Label] = struct{}{}
		missing = append(missing, st.Label)
	}

	if len(missing) == 0 {
		return snap, nil
	}

	n := &Notification{
		ID:               uuid.New(),
		MissingLabels:    missing,
		ThresholdSeconds: t.threshold,
		At:               now,
	}

	for label := range t.lastSeen {
		t.lastSeen[label] = time.Time{}
	}
	clear(t.notified)

	return snap, n
}

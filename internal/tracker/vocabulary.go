package tracker

import (
	"slices"

	"objwatch/internal/models"
)

// placeholder keeps the detector vocabulary non-empty while nothing is tracked.
// It never leaves this package through Labels or Resolve.
const placeholder = "__placeholder__"

// Vocabulary is the ordered label list handed to the detector. A zero
// Vocabulary is Empty: the detector still receives one hidden class so the
// model never gets an empty list.
type Vocabulary struct {
	labels []string
}

func newVocabulary(labels ...string) Vocabulary {
	return Vocabulary{labels: slices.Clone(labels)}
}

// Empty reports whether no real label is tracked.
func (v Vocabulary) Empty() bool {
	return len(v.labels) == 0
}

// Len is the number of real labels.
func (v Vocabulary) Len() int {
	return len(v.labels)
}

// Labels returns the tracked labels in insertion order.
func (v Vocabulary) Labels() []string {
	return slices.Clone(v.labels)
}

// Contains reports whether label is tracked.
func (v Vocabulary) Contains(label string) bool {
	return slices.Contains(v.labels, label)
}

// ModelLabels returns the class list for the detector. Index i of the result
// is class index i of every detection made against it.
func (v Vocabulary) ModelLabels() []string {
	if v.Empty() {
		return []string{placeholder}
	}
	return slices.Clone(v.labels)
}

// Resolve maps a detector class index back to a tracked label. It reports
// false for the placeholder class and for indices outside the vocabulary.
func (v Vocabulary) Resolve(classIndex int) (string, bool) {
	if v.Empty() || classIndex < 0 || classIndex >= len(v.labels) {
		return "", false
	}
	return v.labels[classIndex], true
}

// ResolveDetections maps detections made against ModelLabels to tracked
// labels, once each, in detection order. Placeholder and out-of-range
// classes are dropped.
func (v Vocabulary) ResolveDetections(dets []models.Detection) []string {
	seen := make(map[string]struct{}, len(dets))
	labels := make([]string, 0, len(dets))

	for _, d := range dets {
		label, ok := v.Resolve(d.Class)
		if !ok {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}

	return labels
}

func (v Vocabulary) with(label string) Vocabulary {
	return newVocabulary(append(slices.Clone(v.labels), label)...)
}

func (v Vocabulary) without(label string) Vocabulary {
	return Vocabulary{labels: slices.DeleteFunc(slices.Clone(v.labels), func(l string) bool {
		return l == label
	})}
}

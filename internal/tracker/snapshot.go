package tracker

// LabelStatus is the derived state of one label at one instant.
type LabelStatus struct {
	Label     string
	Absence   int
	Threshold int
	Severity  Severity
}

// Fraction is Absence over Threshold in [0, 1].
func (s LabelStatus) Fraction() float64 {
	if s.Threshold <= 0 {
		return 0
	}
	return float64(s.Absence) / float64(s.Threshold)
}

// Snapshot holds one LabelStatus per tracked label in vocabulary order.
type Snapshot []LabelStatus

// Get returns the status of label.
func (s Snapshot) Get(label string) (LabelStatus, bool) {
	for _, st := range s {
		if st.Label == label {
			return st, true
		}
	}
	return LabelStatus{}, false
}

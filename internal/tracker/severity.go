package tracker

// Severity bands an absence relative to the threshold.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityMissing
)

func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	case SeverityMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Classify returns the band of absence seconds against threshold seconds.
// Missing wins over every ratio band once absence reaches the threshold.
func Classify(absence, threshold int) Severity {
	switch {
	case absence >= threshold:
		return SeverityMissing
	case float64(absence) > 0.75*float64(threshold):
		return SeverityCritical
	case float64(absence) > 0.5*float64(threshold):
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

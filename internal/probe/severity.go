package probe

// Severity is the display band for a latency reading.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityGood
	SeverityDegraded
	SeverityPoor
)

// Band boundaries in milliseconds.
const (
	DegradedFromMS = 1000
	PoorFromMS     = 5000
)

func (s Severity) String() string {
	switch s {
	case SeverityGood:
		return "good"
	case SeverityDegraded:
		return "degraded"
	case SeverityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// Classify maps a latency to its band. 0 means no reading and is Unknown.
func Classify(ms int) Severity {
	switch {
	case ms == 0:
		return SeverityUnknown
	case ms < DegradedFromMS:
		return SeverityGood
	case ms < PoorFromMS:
		return SeverityDegraded
	default:
		return SeverityPoor
	}
}

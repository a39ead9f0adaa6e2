package probe

import (
	"fmt"
	"time"

	pkgerrors "xprobe/pkg/errors"
)

// Reading is the last known latency. The zero value means no probe has
// succeeded yet, which keeps it apart from a genuine 0 ms measurement.
type Reading struct {
	MS    int
	Valid bool
	At    time.Time
}

// Severity classifies the reading. A valid 0 ms reading is Good.
func (r Reading) Severity() Severity {
	if !r.Valid {
		return SeverityUnknown
	}
	if r.MS == 0 {
		return SeverityGood
	}
	return Classify(r.MS)
}

// String renders "250 ms", or "-- ms" without a reading.
func (r Reading) String() string {
	if !r.Valid {
		return "-- ms"
	}
	return fmt.Sprintf("%d ms", r.MS)
}

// Outcome is what the scheduler publishes after each completed probe.
type Outcome struct {
	// Reading is the last known reading after this probe. It only changes
	// when Err is nil.
	Reading  Reading
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Updated reports whether the probe produced a new reading.
func (o Outcome) Updated() bool {
	return o.Err == nil
}

// Negative reports whether the engine answered with success=false.
func (o Outcome) Negative() bool {
	return pkgerrors.IsNegativeResult(o.Err)
}

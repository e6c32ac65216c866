package duration

import (
	"fmt"
	"math"
)

// Verdict classifies an estimate against a target duration.
type Verdict int

const (
	// Fits means the estimate is at or below the target.
	Fits Verdict = iota

	// Overflow means the estimate exceeds the target.
	Overflow
)

// String returns the wire name of the verdict.
func (v Verdict) String() string {
	switch v {
	case Fits:
		return "fits"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Result is the outcome of [Evaluate].
type Result struct {
	Verdict Verdict

	// Margin is estimate minus target in seconds. Positive values are the
	// overflow; zero or negative values are headroom.
	Margin float64
}

// Evaluate compares estimateSeconds against targetSeconds. The estimate is
// compared at the precision reported over the wire (see [Round]) and the
// boundary is inclusive: an estimate that rounds to the target fits.
func Evaluate(estimateSeconds float64, targetSeconds int) Result {
	margin := estimateSeconds - float64(targetSeconds)
	if Round(estimateSeconds) <= float64(targetSeconds) {
		return Result{Verdict: Fits, Margin: margin}
	}
	return Result{Verdict: Overflow, Margin: margin}
}

// Fits reports whether the verdict is [Fits].
func (r Result) Fits() bool { return r.Verdict == Fits }

// Status renders the inline status line shown next to the voice picker.
func (r Result) Status(estimateSeconds float64, targetSeconds int) string {
	secs := math.Round(estimateSeconds)
	if r.Verdict == Overflow {
		return fmt.Sprintf("Script is too long! Estimated duration: %.0f seconds. Please shorten the script or increase the ad duration.", secs)
	}
	return fmt.Sprintf("Script duration: %.0f seconds (fits within %d second limit)", secs, targetSeconds)
}

// BlockedMessage renders the refusal shown when audio generation is attempted
// while the script overflows.
func BlockedMessage(estimateSeconds float64, targetSeconds int) string {
	return fmt.Sprintf("The script is estimated to take %.0f seconds, but the selected duration is %d seconds. Please shorten the script or choose a longer duration.",
		math.Round(estimateSeconds), targetSeconds)
}

package report

import "math"

// Trend describes how the latest run compares to the previous one.
type Trend struct {
	// Direction is "improving", "declining", or "steady".
	Direction string `json:"direction"`

	// Delta is the change in success rate, latest minus previous,
	// in the range [-1, 1].
	Delta float64 `json:"delta"`
}

// steadyEpsilon absorbs float noise when comparing success rates.
const steadyEpsilon = 1e-9

// ComputeTrend compares the newest summary against the one before it.
// History is ordered oldest first. Fewer than two runs is a steady trend
// with zero delta — there is nothing to compare against.
func ComputeTrend(history []Summary) Trend {
	if len(history) < 2 {
		return Trend{Direction: "steady"}
	}

	latest := history[len(history)-1].SuccessRate
	previous := history[len(history)-2].SuccessRate
	delta := latest - previous

	switch {
	case math.Abs(delta) <= steadyEpsilon:
		return Trend{Direction: "steady"}
	case delta > 0:
		return Trend{Direction: "improving", Delta: delta}
	default:
		return Trend{Direction: "declining", Delta: delta}
	}
}

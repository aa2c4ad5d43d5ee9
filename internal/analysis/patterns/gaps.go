package patterns

import (
	"chart-scanner/internal/analysis"
)

// Gap match set names.
const (
	SetBreakawayGap  = "breakaway_gap"
	SetExhaustionGap = "exhaustion_gap"
	SetRunawayGap    = "runaway_gap"
)

// NewGaps classifies consecutive close-to-close moves. With d the first
// difference of close, a bar is a breakaway gap when d and the next d are
// both positive, an exhaustion gap when both are negative and a runaway gap
// when an up move is followed by a down move.
func NewGaps() *WindowDetector {
	return NewWindowDetector(string(analysis.KindGaps),
		analysis.Window{Back: 1, Forward: 1},
		Rule{Set: SetBreakawayGap, Predicate: func(f Frame) bool {
			return f.D(0) > 0 && f.D(1) > 0
		}},
		Rule{Set: SetExhaustionGap, Predicate: func(f Frame) bool {
			return f.D(0) < 0 && f.D(1) < 0
		}},
		Rule{Set: SetRunawayGap, Predicate: func(f Frame) bool {
			return f.D(0) > 0 && f.D(1) < 0
		}},
	)
}

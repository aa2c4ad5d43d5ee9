package patterns

import (
	"chart-scanner/internal/analysis"
)

// Match set names.
const (
	SetHeadAndShoulders    = "head_and_shoulders"
	SetDoubleTop           = "double_top"
	SetDoubleBottom        = "double_bottom"
	SetAscendingTriangle   = "ascending_triangle"
	SetDescendingTriangle  = "descending_triangle"
	SetSymmetricalTriangle = "symmetrical_triangle"
	SetFlag                = "flag"
	SetPennant             = "pennant"
	SetCupAndHandle        = "cup_and_handle"
	SetAscendingWedge      = "ascending_wedge"
	SetDescendingWedge     = "descending_wedge"
)

// NewHeadAndShoulders detects a centre bar whose close sits below both bars
// two positions away, each of which also closes above its inner neighbour.
func NewHeadAndShoulders() *WindowDetector {
	return NewWindowDetector(string(analysis.KindHeadAndShoulders),
		analysis.Window{Back: 2, Forward: 2},
		Rule{Set: SetHeadAndShoulders, Predicate: headAndShoulders},
	)
}

func headAndShoulders(f Frame) bool {
	return f.C(-2) > f.C(-1) && f.C(-2) > f.C(0) &&
		f.C(2) > f.C(1) && f.C(2) > f.C(0)
}

// NewDoubleTopBottom flags outside bars: a strict local high and a strict
// local low on the same bar. Top and bottom share the rule.
func NewDoubleTopBottom() *WindowDetector {
	return NewWindowDetector(string(analysis.KindDoubleTopBottom),
		analysis.Window{Back: 1, Forward: 1},
		Rule{Set: SetDoubleTop, Predicate: outsideBar},
		Rule{Set: SetDoubleBottom, Predicate: outsideBar},
	).withLimitation("double_top and double_bottom use the same rule and always report the same bars")
}

func outsideBar(f Frame) bool {
	return f.H(0) > f.H(-1) && f.H(0) > f.H(1) &&
		f.L(0) < f.L(-1) && f.L(0) < f.L(1)
}

// NewTriangles compares the last two bars against the bar two back.
func NewTriangles() *WindowDetector {
	return NewWindowDetector(string(analysis.KindTriangles),
		analysis.Window{Back: 2, Forward: 0},
		Rule{Set: SetAscendingTriangle, Predicate: risingRange},
		Rule{Set: SetDescendingTriangle, Predicate: fallingRange},
		Rule{Set: SetSymmetricalTriangle, Predicate: convergingRange},
	)
}

// risingRange holds when both highs and lows rose from the bar two back.
func risingRange(f Frame) bool {
	return f.H(-2) < f.H(-1) && f.H(-2) < f.H(0) &&
		f.L(-2) < f.L(-1) && f.L(-2) < f.L(0)
}

// fallingRange holds when both highs and lows fell from the bar two back.
func fallingRange(f Frame) bool {
	return f.H(-2) > f.H(-1) && f.H(-2) > f.H(0) &&
		f.L(-2) > f.L(-1) && f.L(-2) > f.L(0)
}

// convergingRange holds when highs and lows move against each other away
// from the bar two back.
func convergingRange(f Frame) bool {
	up := f.H(-2) < f.H(-1) && f.H(-2) < f.H(0) &&
		f.L(-2) > f.L(-1) && f.L(-2) < f.L(0)
	down := f.H(-2) > f.H(-1) && f.H(-2) > f.H(0) &&
		f.L(-2) < f.L(-1) && f.L(-2) > f.L(0)
	return up || down
}

// NewFlagsPennants detects a bar contained by both neighbours. A flag closes
// below both neighbours, a pennant above both.
func NewFlagsPennants() *WindowDetector {
	return NewWindowDetector(string(analysis.KindFlagsPennants),
		analysis.Window{Back: 1, Forward: 1},
		Rule{Set: SetFlag, Predicate: flag},
		Rule{Set: SetPennant, Predicate: pennant},
	)
}

func containedBar(f Frame) bool {
	return f.H(-1) > f.H(0) && f.H(1) > f.H(0) &&
		f.L(-1) < f.L(0) && f.L(1) < f.L(0)
}

func flag(f Frame) bool {
	return f.C(-1) > f.C(0) && f.C(1) > f.C(0) && containedBar(f)
}

func pennant(f Frame) bool {
	return f.C(-1) < f.C(0) && f.C(1) < f.C(0) && containedBar(f)
}

// NewCupAndHandle detects five strictly falling closes followed by an up
// close on the anchor bar.
func NewCupAndHandle() *WindowDetector {
	return NewWindowDetector(string(analysis.KindCupAndHandle),
		analysis.Window{Back: 5, Forward: 0},
		Rule{Set: SetCupAndHandle, Predicate: cupAndHandle},
	)
}

func cupAndHandle(f Frame) bool {
	for k := -5; k < -1; k++ {
		if !(f.C(k) > f.C(k+1)) {
			return false
		}
	}
	return f.C(-1) < f.C(0)
}

// NewWedges reuses the ascending and descending triangle rules.
func NewWedges() *WindowDetector {
	return NewWindowDetector(string(analysis.KindWedges),
		analysis.Window{Back: 2, Forward: 0},
		Rule{Set: SetAscendingWedge, Predicate: risingRange},
		Rule{Set: SetDescendingWedge, Predicate: fallingRange},
	).withLimitation("ascending/descending wedges use the ascending/descending triangle rules")
}

package patterns

import (
	"math"
	"reflect"
	"testing"
	"time"

	"chart-scanner/internal/analysis"
	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

type ohlc struct {
	o, h, l, c float64
}

func seriesOf(bars ...ohlc) models.Series {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(bars))
	for i, b := range bars {
		out[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      b.o,
			High:      b.h,
			Low:       b.l,
			Close:     b.c,
		}
	}
	return models.NewSeries("TEST", out)
}

// closesOnly builds bars whose open, high and low track the close.
func closesOnly(closes ...float64) models.Series {
	bars := make([]ohlc, len(closes))
	for i, c := range closes {
		bars[i] = ohlc{c, c, c, c}
	}
	return seriesOf(bars...)
}

// hl builds bars from high/low pairs with the close at the midpoint.
func hl(pairs ...[2]float64) models.Series {
	bars := make([]ohlc, len(pairs))
	for i, p := range pairs {
		mid := (p[0] + p[1]) / 2
		bars[i] = ohlc{mid, p[0], p[1], mid}
	}
	return seriesOf(bars...)
}

// withTail appends k copies of the last high/low pair so that a one-sided
// window's anchor sits inside the symmetric margin.
func withTail(k int, pairs ...[2]float64) models.Series {
	last := pairs[len(pairs)-1]
	for j := 0; j < k; j++ {
		pairs = append(pairs, last)
	}
	return hl(pairs...)
}

func detect(t *testing.T, d *WindowDetector, s models.Series) analysis.Detection {
	t.Helper()
	det, err := d.Detect(s)
	if err != nil {
		t.Fatalf("%s.Detect: %v", d.Name(), err)
	}
	return det
}

func indices(t *testing.T, det analysis.Detection, set string) []int {
	t.Helper()
	ms, ok := det.Set(set)
	if !ok {
		t.Fatalf("detection %s has no set %s", det.Detector, set)
	}
	return ms.Indices
}

func assertIndices(t *testing.T, det analysis.Detection, set string, want ...int) {
	t.Helper()
	got := indices(t, det, set)
	if want == nil {
		want = []int{}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s: got %v, want %v", set, got, want)
	}
}

func TestHeadAndShoulders(t *testing.T) {
	det := detect(t, NewHeadAndShoulders(), closesOnly(5, 3, 1, 3, 5))
	assertIndices(t, det, SetHeadAndShoulders, 2)

	det = detect(t, NewHeadAndShoulders(), closesOnly(1, 3, 5, 3, 1))
	assertIndices(t, det, SetHeadAndShoulders)

	// Outer bars must exceed their inner neighbours, not just the centre.
	det = detect(t, NewHeadAndShoulders(), closesOnly(5, 6, 1, 3, 5))
	assertIndices(t, det, SetHeadAndShoulders)

	det = detect(t, NewHeadAndShoulders(), closesOnly(9, 5, 3, 1, 3, 5, 2, 1, 6))
	assertIndices(t, det, SetHeadAndShoulders, 3)
}

func TestDoubleTopBottomOutsideBar(t *testing.T) {
	s := hl([2]float64{100, 90}, [2]float64{105, 85}, [2]float64{100, 90})
	det := detect(t, NewDoubleTopBottom(), s)
	assertIndices(t, det, SetDoubleTop, 1)
	assertIndices(t, det, SetDoubleBottom, 1)
}

func TestDoubleTopBottomNeedsBothExtremes(t *testing.T) {
	// Outside-bar reading: the centre must hold both the strict high and the
	// strict low, so [90, 100, 90] with high/low tracking close does not match.
	det := detect(t, NewDoubleTopBottom(), closesOnly(90, 100, 90))
	assertIndices(t, det, SetDoubleTop)

	// Equal highs are not a strict maximum.
	det = detect(t, NewDoubleTopBottom(), hl([2]float64{105, 90}, [2]float64{105, 85}, [2]float64{100, 90}))
	assertIndices(t, det, SetDoubleTop)
}

func TestTriangles(t *testing.T) {
	tests := []struct {
		name string
		bars models.Series
		asc  []int
		desc []int
		symm []int
	}{
		{
			name: "rising highs and lows",
			bars: withTail(2, [2]float64{10, 5}, [2]float64{11, 6}, [2]float64{12, 7}),
			asc:  []int{2},
		},
		{
			name: "falling highs and lows",
			bars: withTail(2, [2]float64{12, 7}, [2]float64{11, 6}, [2]float64{10, 5}),
			desc: []int{2},
		},
		{
			name: "highs up, low dips then recovers",
			bars: withTail(2, [2]float64{10, 5}, [2]float64{11, 4}, [2]float64{12, 6}),
			symm: []int{2},
		},
		{
			name: "highs down, low rises then drops",
			bars: withTail(2, [2]float64{12, 5}, [2]float64{11, 6}, [2]float64{10, 4}),
			symm: []int{2},
		},
		{
			name: "flat",
			bars: withTail(2, [2]float64{10, 5}, [2]float64{10, 5}, [2]float64{10, 5}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := detect(t, NewTriangles(), tt.bars)
			assertIndices(t, det, SetAscendingTriangle, tt.asc...)
			assertIndices(t, det, SetDescendingTriangle, tt.desc...)
			assertIndices(t, det, SetSymmetricalTriangle, tt.symm...)
		})
	}
}

func TestFlagsPennants(t *testing.T) {
	flagBars := seriesOf(
		ohlc{11, 12, 8, 11},
		ohlc{10, 11, 9, 10},
		ohlc{11, 12, 8, 11},
	)
	det := detect(t, NewFlagsPennants(), flagBars)
	assertIndices(t, det, SetFlag, 1)
	assertIndices(t, det, SetPennant)

	pennantBars := seriesOf(
		ohlc{10, 12, 8, 10},
		ohlc{10.5, 11, 9, 10.8},
		ohlc{10, 12, 8, 10},
	)
	det = detect(t, NewFlagsPennants(), pennantBars)
	assertIndices(t, det, SetFlag)
	assertIndices(t, det, SetPennant, 1)

	// Not contained: the centre high pokes above the left neighbour.
	escaped := seriesOf(
		ohlc{11, 12, 8, 11},
		ohlc{10, 12.5, 9, 10},
		ohlc{11, 13, 8, 11},
	)
	det = detect(t, NewFlagsPennants(), escaped)
	assertIndices(t, det, SetFlag)
}

func TestCupAndHandle(t *testing.T) {
	det := detect(t, NewCupAndHandle(), closesOnly(10, 9, 8, 7, 6, 7, 8, 9, 10, 11, 12))
	assertIndices(t, det, SetCupAndHandle, 5)

	// The reversal must be an up close.
	det = detect(t, NewCupAndHandle(), closesOnly(10, 9, 8, 7, 6, 5, 6, 7, 8, 9, 10))
	assertIndices(t, det, SetCupAndHandle)

	// A flat step breaks the decline.
	det = detect(t, NewCupAndHandle(), closesOnly(10, 9, 9, 7, 6, 7, 8, 9, 10, 11, 12))
	assertIndices(t, det, SetCupAndHandle)

	// Ten bars leave no anchor five bars from both ends.
	det = detect(t, NewCupAndHandle(), closesOnly(10, 9, 8, 7, 6, 7, 8, 9, 10, 11))
	assertIndices(t, det, SetCupAndHandle)
	if got := NewCupAndHandle().MinBars(); got != 11 {
		t.Errorf("MinBars = %d, want 11", got)
	}
}

func TestOneSidedWindowsSkipTheTail(t *testing.T) {
	// Rising highs and lows satisfy the ascending rule at every bar from 2 on,
	// but the last two bars are within the margin.
	rising := hl(
		[2]float64{10, 5}, [2]float64{11, 6}, [2]float64{12, 7}, [2]float64{13, 8},
		[2]float64{14, 9}, [2]float64{15, 10}, [2]float64{16, 11},
	)
	assertIndices(t, detect(t, NewTriangles(), rising), SetAscendingTriangle, 2, 3, 4)
	assertIndices(t, detect(t, NewWedges(), rising), SetAscendingWedge, 2, 3, 4)

	for _, i := range []int{5, 6} {
		o, err := NewTriangles().Evaluate(rising, SetAscendingTriangle, i)
		if err != nil || o != analysis.Undefined {
			t.Errorf("Evaluate(%d) = %v, %v; want undefined", i, o, err)
		}
	}

	// A cup completing on the last bar is not reported.
	det := detect(t, NewCupAndHandle(), closesOnly(20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 11))
	assertIndices(t, det, SetCupAndHandle)
}

func TestFrameAccessors(t *testing.T) {
	s := seriesOf(ohlc{1, 2, 0.5, 1.5}, ohlc{1.5, 3, 1, 2.5}, ohlc{2.5, 4, 2, 3})
	f, ok := frameAt(s, analysis.Window{Back: 1, Forward: 1}, 1)
	if !ok {
		t.Fatal("frame at 1 should exist")
	}
	if f.Anchor() != 1 || f.O(-1) != 1 || f.O(1) != 2.5 || f.H(0) != 3 || f.L(1) != 2 || f.D(1) != 0.5 {
		t.Errorf("unexpected frame values: anchor %d open %v/%v", f.Anchor(), f.O(-1), f.O(1))
	}
	if _, ok := frameAt(s, analysis.Window{Back: 2, Forward: 0}, 2); ok {
		t.Errorf("one-sided window at the last bar should have no frame")
	}
}

func TestWedgesShareTriangleRules(t *testing.T) {
	s := hl(
		[2]float64{10, 5}, [2]float64{11, 6}, [2]float64{12, 7},
		[2]float64{11, 6}, [2]float64{10, 5}, [2]float64{9, 4},
		[2]float64{8, 3}, [2]float64{7, 2},
	)
	tri := detect(t, NewTriangles(), s)
	wed := detect(t, NewWedges(), s)

	if !reflect.DeepEqual(indices(t, tri, SetAscendingTriangle), indices(t, wed, SetAscendingWedge)) {
		t.Errorf("ascending wedge differs from ascending triangle")
	}
	if !reflect.DeepEqual(indices(t, tri, SetDescendingTriangle), indices(t, wed, SetDescendingWedge)) {
		t.Errorf("descending wedge differs from descending triangle")
	}
	assertIndices(t, wed, SetAscendingWedge, 2)
	assertIndices(t, wed, SetDescendingWedge, 4, 5)
	if NewWedges().KnownLimitation() == "" || NewDoubleTopBottom().KnownLimitation() == "" {
		t.Errorf("shared-rule detectors should document their limitation")
	}
}

func TestGaps(t *testing.T) {
	// d = [_, +1, +1, -1]
	det := detect(t, NewGaps(), closesOnly(100, 101, 102, 101))
	assertIndices(t, det, SetBreakawayGap, 1)
	assertIndices(t, det, SetRunawayGap, 2)
	assertIndices(t, det, SetExhaustionGap)

	det = detect(t, NewGaps(), closesOnly(100, 99, 98, 97))
	assertIndices(t, det, SetExhaustionGap, 1, 2)
	assertIndices(t, det, SetBreakawayGap)

	// Unchanged closes are neither up nor down moves.
	det = detect(t, NewGaps(), closesOnly(100, 100, 101))
	assertIndices(t, det, SetBreakawayGap)
	assertIndices(t, det, SetRunawayGap)
}

func TestDetectorsOnTinySeries(t *testing.T) {
	for _, d := range NewRegistry().All() {
		for _, s := range []models.Series{models.NewSeries("EMPTY", nil), closesOnly(100)} {
			det := detect(t, d, s)
			if det.Total() != 0 {
				t.Errorf("%s on %d bars: expected no matches, got %+v", d.Name(), s.Len(), det.Sets)
			}
			if len(det.Sets) != len(d.Sets()) {
				t.Errorf("%s: expected %d sets, got %d", d.Name(), len(d.Sets()), len(det.Sets))
			}
			for _, set := range det.Sets {
				if set.Indices == nil {
					t.Errorf("%s/%s: indices should be empty, not nil", d.Name(), set.Name)
				}
			}
		}
	}
}

func TestEvaluateBoundaries(t *testing.T) {
	d := NewHeadAndShoulders()
	s := closesOnly(5, 3, 1, 3, 5)

	want := []analysis.Outcome{analysis.Undefined, analysis.Undefined, analysis.Match, analysis.Undefined, analysis.Undefined}
	got, err := d.Outcomes(s, SetHeadAndShoulders)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Outcomes = %v, want %v", got, want)
	}

	for _, i := range []int{-1, 5, 100} {
		o, err := d.Evaluate(s, SetHeadAndShoulders, i)
		if err != nil || o != analysis.Undefined {
			t.Errorf("Evaluate(%d) = %v, %v; want undefined", i, o, err)
		}
	}

	if _, err := d.Evaluate(s, "nope", 2); err == nil {
		t.Errorf("expected error for unknown set")
	}

	o, _ := NewCupAndHandle().Evaluate(closesOnly(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11), SetCupAndHandle, 5)
	if o != analysis.NoMatch {
		t.Errorf("Evaluate in range without match = %v, want no_match", o)
	}
}

func TestDetectRejectsInvalidSeries(t *testing.T) {
	bad := models.NewSeries("BAD", []models.Bar{
		{Timestamp: time.Unix(100, 0), Close: 1},
		{Timestamp: time.Unix(200, 0), Close: math.NaN()},
		{Timestamp: time.Unix(300, 0), Close: 1},
	})
	for _, d := range NewRegistry().All() {
		if _, err := d.Detect(bad); !apperrors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("%s: expected input error, got %v", d.Name(), err)
		}
	}
}

func TestDetectDoesNotMutateSeries(t *testing.T) {
	s := closesOnly(10, 9, 8, 7, 6, 7, 8, 6, 9)
	before := s.Bars()
	for _, d := range NewRegistry().All() {
		detect(t, d, s)
	}
	if !reflect.DeepEqual(before, s.Bars()) {
		t.Errorf("series changed during detection")
	}
}

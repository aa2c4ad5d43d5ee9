package patterns

import (
	"chart-scanner/internal/analysis"
	"chart-scanner/internal/models"
)

// Frame is a bounds-checked view of the bars around one anchor index.
// Offsets are relative to the anchor: C(-1) is the previous close, C(1) the
// next one. A Frame only exists when every offset of its window is inside
// the series, so accessors never see an out-of-range bar.
type Frame struct {
	bars   []models.Bar
	back   int
	anchor int
}

// frameAt builds the frame for index i, or reports false when i is closer
// than the window margin to either end of the series. Nothing is wrapped or
// clamped.
func frameAt(series models.Series, w analysis.Window, i int) (Frame, bool) {
	n := series.Len()
	if n == 0 || !w.Contains(i, n) {
		return Frame{}, false
	}
	bars := make([]models.Bar, 0, w.Size())
	for k := -w.Back; k <= w.Forward; k++ {
		b, ok := series.At(i + k)
		if !ok {
			return Frame{}, false
		}
		bars = append(bars, b)
	}
	return Frame{bars: bars, back: w.Back, anchor: i}, true
}

// Anchor returns the series index the frame is centred on.
func (f Frame) Anchor() int {
	return f.anchor
}

// Bar returns the bar at offset k.
func (f Frame) Bar(k int) models.Bar {
	return f.bars[f.back+k]
}

// C returns the close at offset k.
func (f Frame) C(k int) float64 {
	return f.Bar(k).Close
}

// H returns the high at offset k.
func (f Frame) H(k int) float64 {
	return f.Bar(k).High
}

// L returns the low at offset k.
func (f Frame) L(k int) float64 {
	return f.Bar(k).Low
}

// O returns the open at offset k.
func (f Frame) O(k int) float64 {
	return f.Bar(k).Open
}

// D returns the first difference of close at offset k, C(k)-C(k-1).
func (f Frame) D(k int) float64 {
	return f.C(k) - f.C(k-1)
}

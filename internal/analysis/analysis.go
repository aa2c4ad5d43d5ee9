// Package analysis provides the shared vocabulary of the technical analysis
// engine: detectors, per-bar outcomes, match sets and optional values.
package analysis

import (
	"encoding/json"
	"strings"

	"chart-scanner/internal/models"
)

// Detector defines the interface for pattern detection. Detectors are
// stateless and never mutate the series they scan. Detect fails only when
// the series breaks its invariants; short series yield empty sets.
type Detector interface {
	Name() string
	Window() Window
	Detect(series models.Series) (Detection, error)
}

// Window is the span of offsets a detector reads around the bar under
// evaluation. Back is the number of bars before it, Forward after it.
type Window struct {
	Back    int
	Forward int
}

// Size is the number of bars a window covers.
func (w Window) Size() int {
	return w.Back + w.Forward + 1
}

// Margin is the largest offset magnitude of the window. Anchors closer than
// this to either end of a series are never evaluated.
func (w Window) Margin() int {
	return max(w.Back, w.Forward)
}

// Contains reports whether i lies in [Margin, n-1-Margin] for a series of n
// bars. The bound is symmetric even for one-sided windows.
func (w Window) Contains(i, n int) bool {
	m := w.Margin()
	return i >= m && i <= n-1-m
}

// Outcome is the result of evaluating a predicate at one bar.
type Outcome int8

const (
	// Undefined means the window around the bar leaves the series.
	Undefined Outcome = iota
	NoMatch
	Match
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no_match"
	case Match:
		return "match"
	default:
		return "undefined"
	}
}

// Defined reports whether the predicate could be evaluated.
func (o Outcome) Defined() bool {
	return o != Undefined
}

// OutcomeOf converts a boolean predicate result into an Outcome.
func OutcomeOf(ok bool) Outcome {
	if ok {
		return Match
	}
	return NoMatch
}

// MatchSet is the set of bar indices where one named predicate held.
type MatchSet struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices"`
}

// Len returns the number of matched bars.
func (m MatchSet) Len() int {
	return len(m.Indices)
}

// Contains reports whether index i matched.
func (m MatchSet) Contains(i int) bool {
	for _, idx := range m.Indices {
		if idx == i {
			return true
		}
		if idx > i {
			return false
		}
	}
	return false
}

// Detection is everything one detector reported for a series.
type Detection struct {
	Detector string     `json:"detector"`
	Sets     []MatchSet `json:"sets"`
}

// Set returns the match set with the given name.
func (d Detection) Set(name string) (MatchSet, bool) {
	for _, s := range d.Sets {
		if s.Name == name {
			return s, true
		}
	}
	return MatchSet{}, false
}

// Total returns the number of matches across all sets.
func (d Detection) Total() int {
	total := 0
	for _, s := range d.Sets {
		total += s.Len()
	}
	return total
}

// Value is an optional float. Invalid values mark bars where a rolling
// statistic has no defined result.
type Value struct {
	Float float64
	Valid bool
}

// Some returns a valid Value.
func Some(f float64) Value {
	return Value{Float: f, Valid: true}
}

// None returns an invalid Value.
func None() Value {
	return Value{}
}

// MarshalJSON encodes invalid values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON decodes null into an invalid value.
func (v *Value) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Kind names one computation a request can select.
type Kind string

const (
	KindBollingerBands   Kind = "BollingerBands"
	KindHeadAndShoulders Kind = "HeadAndShoulders"
	KindDoubleTopBottom  Kind = "DoubleTopBottom"
	KindTriangles        Kind = "Triangles"
	KindFlagsPennants    Kind = "FlagsPennants"
	KindCupAndHandle     Kind = "CupAndHandle"
	KindWedges           Kind = "Wedges"
	KindGaps             Kind = "Gaps"
)

// Kinds lists every selectable computation in menu order.
var Kinds = []Kind{
	KindBollingerBands,
	KindHeadAndShoulders,
	KindDoubleTopBottom,
	KindTriangles,
	KindFlagsPennants,
	KindCupAndHandle,
	KindWedges,
	KindGaps,
}

// ParseKind resolves a kind name case-insensitively, ignoring spaces,
// dashes, underscores and the word "and" so that "head-and-shoulders",
// "Head and Shoulders" and "HeadAndShoulders" all resolve.
func ParseKind(name string) (Kind, bool) {
	key := normalizeKind(name)
	if key == "" {
		return "", false
	}
	for _, k := range Kinds {
		if normalizeKind(string(k)) == key {
			return k, true
		}
	}
	if k, ok := kindAliases[key]; ok {
		return k, true
	}
	return "", false
}

var kindAliases = map[string]Kind{
	normalizeKind("bollinger"):                    KindBollingerBands,
	normalizeKind("bb"):                           KindBollingerBands,
	normalizeKind("double top and double bottom"): KindDoubleTopBottom,
	normalizeKind("double top"):                   KindDoubleTopBottom,
	normalizeKind("double bottom"):                KindDoubleTopBottom,
	normalizeKind("cup"):                          KindCupAndHandle,
}

func normalizeKind(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(" ", "", "-", "", "_", "", "&", "").Replace(s)
	return strings.ReplaceAll(s, "and", "")
}

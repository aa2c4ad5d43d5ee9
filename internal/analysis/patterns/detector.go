// Package patterns provides chart pattern detection over local bar windows.
package patterns

import (
	"fmt"

	"chart-scanner/internal/analysis"
	"chart-scanner/internal/models"
)

// Predicate decides whether a pattern condition holds for one frame.
type Predicate func(f Frame) bool

// Rule binds a predicate to the name of the match set it feeds.
type Rule struct {
	Set       string
	Predicate Predicate
}

// WindowDetector scans every bar of a series, evaluates its rules on the
// frame around the bar and collects the indices where each rule held.
type WindowDetector struct {
	name       string
	window     analysis.Window
	rules      []Rule
	limitation string
}

// NewWindowDetector creates a detector from rules sharing one window.
func NewWindowDetector(name string, window analysis.Window, rules ...Rule) *WindowDetector {
	return &WindowDetector{
		name:   name,
		window: window,
		rules:  rules,
	}
}

// withLimitation records a documented shortcoming of the detection rule.
func (d *WindowDetector) withLimitation(note string) *WindowDetector {
	d.limitation = note
	return d
}

func (d *WindowDetector) Name() string {
	return d.name
}

func (d *WindowDetector) Window() analysis.Window {
	return d.window
}

// Sets returns the match set names in output order.
func (d *WindowDetector) Sets() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.Set
	}
	return names
}

// KnownLimitation describes where the rule is known to diverge from the
// pattern its name suggests. Empty when there is none.
func (d *WindowDetector) KnownLimitation() string {
	return d.limitation
}

// MinBars is the shortest series on which the detector can match.
func (d *WindowDetector) MinBars() int {
	return 2*d.window.Margin() + 1
}

// Evaluate returns the outcome of the named rule at index i.
func (d *WindowDetector) Evaluate(series models.Series, set string, i int) (analysis.Outcome, error) {
	rule, ok := d.rule(set)
	if !ok {
		return analysis.Undefined, fmt.Errorf("%s: no match set %q", d.name, set)
	}
	f, ok := frameAt(series, d.window, i)
	if !ok {
		return analysis.Undefined, nil
	}
	return analysis.OutcomeOf(rule.Predicate(f)), nil
}

// Outcomes returns the per-bar outcomes of the named rule.
func (d *WindowDetector) Outcomes(series models.Series, set string) ([]analysis.Outcome, error) {
	rule, ok := d.rule(set)
	if !ok {
		return nil, fmt.Errorf("%s: no match set %q", d.name, set)
	}
	out := make([]analysis.Outcome, series.Len())
	for i := range out {
		if f, ok := frameAt(series, d.window, i); ok {
			out[i] = analysis.OutcomeOf(rule.Predicate(f))
		}
	}
	return out, nil
}

// Detect scans the series and returns one match set per rule.
func (d *WindowDetector) Detect(series models.Series) (analysis.Detection, error) {
	if err := series.Validate(); err != nil {
		return analysis.Detection{}, err
	}

	sets := make([]analysis.MatchSet, len(d.rules))
	for r, rule := range d.rules {
		sets[r] = analysis.MatchSet{Name: rule.Set, Indices: []int{}}
	}

	m := d.window.Margin()
	for i := m; i < series.Len()-m; i++ {
		f, ok := frameAt(series, d.window, i)
		if !ok {
			continue
		}
		for r, rule := range d.rules {
			if rule.Predicate(f) {
				sets[r].Indices = append(sets[r].Indices, i)
			}
		}
	}

	return analysis.Detection{Detector: d.name, Sets: sets}, nil
}

func (d *WindowDetector) rule(set string) (Rule, bool) {
	for _, r := range d.rules {
		if r.Set == set {
			return r, true
		}
	}
	return Rule{}, false
}

// Package models provides domain models for the chart scanner.
package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	apperrors "chart-scanner/internal/errors"
)

// Bar represents OHLCV data for one time period.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"` // zero when the source reports none
}

// Series is a chronologically ordered sequence of bars for one instrument.
// A Series is never mutated after construction; accessors return copies.
type Series struct {
	symbol string
	bars   []Bar
}

// NewSeries builds a Series from bars. The input slice is copied so later
// writes by the caller cannot leak into analysis results.
func NewSeries(symbol string, bars []Bar) Series {
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Series{symbol: symbol, bars: cp}
}

// Symbol returns the instrument identifier the series was built for.
func (s Series) Symbol() string {
	return s.symbol
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.bars)
}

// At returns the bar at index i and whether i is inside the series.
func (s Series) At(i int) (Bar, bool) {
	if i < 0 || i >= len(s.bars) {
		return Bar{}, false
	}
	return s.bars[i], true
}

// Bars returns a copy of the underlying bars.
func (s Series) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Closes extracts close prices.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// First returns the first bar timestamp, zero for an empty series.
func (s Series) First() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[0].Timestamp
}

// Last returns the last bar timestamp, zero for an empty series.
func (s Series) Last() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Timestamp
}

// Validate checks the series invariants: strictly increasing timestamps and
// finite prices. An empty series is valid; detectors simply find nothing.
func (s Series) Validate() error {
	for i, b := range s.bars {
		for _, f := range []struct {
			name string
			v    float64
		}{
			{"open", b.Open},
			{"high", b.High},
			{"low", b.Low},
			{"close", b.Close},
		} {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
				return apperrors.NewInputError(f.name, i, fmt.Sprintf("non-finite value %v", f.v))
			}
		}
		if i > 0 && !b.Timestamp.After(s.bars[i-1].Timestamp) {
			return apperrors.NewInputError("timestamp", i,
				fmt.Sprintf("%s does not follow %s", b.Timestamp.Format(time.RFC3339), s.bars[i-1].Timestamp.Format(time.RFC3339)))
		}
	}
	return nil
}

// SortBars orders bars by timestamp and drops duplicate timestamps, keeping
// the last occurrence. Data sources use it before building a Series.
func SortBars(bars []Bar) []Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Interval is the sampling granularity requested from a data source.
type Interval string

const (
	Interval1Min   Interval = "1m"
	Interval2Min   Interval = "2m"
	Interval5Min   Interval = "5m"
	Interval15Min  Interval = "15m"
	Interval30Min  Interval = "30m"
	Interval60Min  Interval = "60m"
	Interval90Min  Interval = "90m"
	Interval1Hour  Interval = "1h"
	Interval1Day   Interval = "1d"
	Interval5Day   Interval = "5d"
	Interval1Week  Interval = "1wk"
	Interval1Month Interval = "1mo"
	Interval3Month Interval = "3mo"
)

// DefaultInterval matches the daily bars the detectors are tuned for.
const DefaultInterval = Interval1Day

// Intervals lists every supported interval, finest first.
var Intervals = []Interval{
	Interval1Min, Interval2Min, Interval5Min, Interval15Min, Interval30Min,
	Interval60Min, Interval90Min, Interval1Hour, Interval1Day, Interval5Day,
	Interval1Week, Interval1Month, Interval3Month,
}

// ParseInterval validates an interval string. Empty means the default.
func ParseInterval(s string) (Interval, error) {
	if s == "" {
		return DefaultInterval, nil
	}
	for _, iv := range Intervals {
		if strings.EqualFold(string(iv), s) {
			return iv, nil
		}
	}
	return "", apperrors.NewConfigurationError("interval", s, "unsupported interval")
}

// IsIntraday reports whether the interval is finer than one day.
func (i Interval) IsIntraday() bool {
	switch i {
	case Interval1Day, Interval5Day, Interval1Week, Interval1Month, Interval3Month:
		return false
	}
	return true
}

// Period is the lookback window requested from a data source.
type Period string

const (
	Period1Day   Period = "1d"
	Period5Day   Period = "5d"
	Period1Month Period = "1mo"
	Period3Month Period = "3mo"
	Period6Month Period = "6mo"
	Period1Year  Period = "1y"
	Period2Year  Period = "2y"
	Period5Year  Period = "5y"
	Period10Year Period = "10y"
	PeriodYTD    Period = "ytd"
	PeriodMax    Period = "max"
)

// DefaultPeriod is one year of history.
const DefaultPeriod = Period1Year

// Periods lists every supported lookback period.
var Periods = []Period{
	Period1Day, Period5Day, Period1Month, Period3Month, Period6Month,
	Period1Year, Period2Year, Period5Year, Period10Year, PeriodYTD, PeriodMax,
}

// ParsePeriod validates a period string. Empty means the default.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return DefaultPeriod, nil
	}
	for _, p := range Periods {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", apperrors.NewConfigurationError("period", s, "unsupported period")
}

// Start returns the first instant covered by the period when it ends at now.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case Period1Day:
		return now.AddDate(0, 0, -1)
	case Period5Day:
		return now.AddDate(0, 0, -5)
	case Period1Month:
		return now.AddDate(0, -1, 0)
	case Period3Month:
		return now.AddDate(0, -3, 0)
	case Period6Month:
		return now.AddDate(0, -6, 0)
	case Period2Year:
		return now.AddDate(-2, 0, 0)
	case Period5Year:
		return now.AddDate(-5, 0, 0)
	case Period10Year:
		return now.AddDate(-10, 0, 0)
	case PeriodYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	case PeriodMax:
		return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return now.AddDate(-1, 0, 0)
	}
}

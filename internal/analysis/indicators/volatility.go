// Package indicators provides the rolling statistics engine.
package indicators

import (
	"fmt"

	"chart-scanner/internal/analysis"
	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

// Bollinger band defaults.
const (
	DefaultBollingerWindow     = 20
	DefaultBollingerMultiplier = 2.0
)

// BollingerConfig is the configuration surface of the band calculation.
type BollingerConfig struct {
	Window     int     `json:"window" mapstructure:"window"`
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier"`
}

// DefaultBollingerConfig returns the classic 20-bar, two-sigma bands.
func DefaultBollingerConfig() BollingerConfig {
	return BollingerConfig{
		Window:     DefaultBollingerWindow,
		Multiplier: DefaultBollingerMultiplier,
	}
}

// Validate rejects non-positive parameters.
func (c BollingerConfig) Validate() error {
	if c.Window <= 0 {
		return apperrors.NewConfigurationError("window", c.Window, "must be positive")
	}
	if !(c.Multiplier > 0) {
		return apperrors.NewConfigurationError("multiplier", c.Multiplier, "must be positive")
	}
	return nil
}

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	cfg BollingerConfig
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(cfg BollingerConfig) (*BollingerBands, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BollingerBands{cfg: cfg}, nil
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.cfg.Window, b.cfg.Multiplier)
}

func (b *BollingerBands) Period() int {
	return b.cfg.Window
}

// Config returns the parameters the bands were built with.
func (b *BollingerBands) Config() BollingerConfig {
	return b.cfg
}

// DerivedSeries holds the band output aligned index-for-index with the
// input series. Values before the first full window are invalid and both
// signals are false there.
type DerivedSeries struct {
	Window     int              `json:"window"`
	Multiplier float64          `json:"multiplier"`
	SMA        []analysis.Value `json:"sma"`
	StdDev     []analysis.Value `json:"std"`
	Upper      []analysis.Value `json:"upper"`
	Lower      []analysis.Value `json:"lower"`
	Buy        []bool           `json:"buy"`
	Sell       []bool           `json:"sell"`
}

// Len returns the number of aligned rows.
func (d *DerivedSeries) Len() int {
	return len(d.SMA)
}

// BuySignals returns the breakout-above-band indices as a match set.
func (d *DerivedSeries) BuySignals() analysis.MatchSet {
	return flagged("buy", d.Buy)
}

// SellSignals returns the breakdown-below-band indices as a match set.
func (d *DerivedSeries) SellSignals() analysis.MatchSet {
	return flagged("sell", d.Sell)
}

// Bandwidth returns (upper-lower)/middle at i.
func (d *DerivedSeries) Bandwidth(i int) analysis.Value {
	if i < 0 || i >= d.Len() || !d.SMA[i].Valid || d.SMA[i].Float == 0 {
		return analysis.None()
	}
	return analysis.Some((d.Upper[i].Float - d.Lower[i].Float) / d.SMA[i].Float)
}

// PercentB returns where price sits inside the bands at i, 0 at the lower
// band and 1 at the upper band.
func (d *DerivedSeries) PercentB(i int, price float64) analysis.Value {
	if i < 0 || i >= d.Len() || !d.SMA[i].Valid {
		return analysis.None()
	}
	width := d.Upper[i].Float - d.Lower[i].Float
	if width == 0 {
		return analysis.None()
	}
	return analysis.Some((price - d.Lower[i].Float) / width)
}

func flagged(name string, flags []bool) analysis.MatchSet {
	set := analysis.MatchSet{Name: name, Indices: []int{}}
	for i, f := range flags {
		if f {
			set.Indices = append(set.Indices, i)
		}
	}
	return set
}

// Calculate computes the bands over the close prices of series. Insufficient
// history is not an error: the affected rows are simply undefined.
func (b *BollingerBands) Calculate(series models.Series) (*DerivedSeries, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	n := series.Len()
	closes := series.Closes()
	out := &DerivedSeries{
		Window:     b.cfg.Window,
		Multiplier: b.cfg.Multiplier,
		SMA:        make([]analysis.Value, n),
		StdDev:     make([]analysis.Value, n),
		Upper:      make([]analysis.Value, n),
		Lower:      make([]analysis.Value, n),
		Buy:        make([]bool, n),
		Sell:       make([]bool, n),
	}

	for i := b.cfg.Window - 1; i < n; i++ {
		slice := closes[i-b.cfg.Window+1 : i+1]
		sma := mean(slice)
		sd := sampleStdDev(slice, sma)
		upper := sma + b.cfg.Multiplier*sd
		lower := sma - b.cfg.Multiplier*sd

		out.SMA[i] = analysis.Some(sma)
		out.StdDev[i] = analysis.Some(sd)
		out.Upper[i] = analysis.Some(upper)
		out.Lower[i] = analysis.Some(lower)
		out.Buy[i] = closes[i] > upper
		out.Sell[i] = closes[i] < lower
	}

	return out, nil
}

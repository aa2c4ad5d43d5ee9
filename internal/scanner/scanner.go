// Package scanner selects and runs one computation for a requested symbol.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chart-scanner/internal/analysis"
	"chart-scanner/internal/analysis/indicators"
	"chart-scanner/internal/analysis/patterns"
	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/logging"
	"chart-scanner/internal/marketdata"
	"chart-scanner/internal/models"
)

// Request names the instrument, history and computation to run.
type Request struct {
	Symbol   string
	Interval models.Interval
	Period   models.Period
	Detector string

	// Bollinger overrides the scanner's band parameters for this request.
	Bollinger *indicators.BollingerConfig
}

func (r Request) history() marketdata.HistoryRequest {
	return marketdata.HistoryRequest{Symbol: r.Symbol, Interval: r.Interval, Period: r.Period}
}

// Result holds the fetched series and exactly one of Bollinger or Detection.
type Result struct {
	Symbol    string                    `json:"symbol"`
	Source    string                    `json:"source"`
	Interval  models.Interval           `json:"interval"`
	Period    models.Period             `json:"period"`
	Detector  analysis.Kind             `json:"detector"`
	Series    models.Series             `json:"-"`
	Bars      []models.Bar              `json:"bars"`
	Bollinger *indicators.DerivedSeries `json:"bollinger,omitempty"`
	Detection *analysis.Detection       `json:"detection,omitempty"`
}

// Matches returns the number of flagged bars in the result.
func (r *Result) Matches() int {
	switch {
	case r.Detection != nil:
		return r.Detection.Total()
	case r.Bollinger != nil:
		return r.Bollinger.BuySignals().Len() + r.Bollinger.SellSignals().Len()
	}
	return 0
}

// Scanner fetches bars and runs detectors over them.
type Scanner struct {
	source    marketdata.Source
	bollinger *indicators.BollingerBands
	engine    *patterns.Engine
	logger    zerolog.Logger
}

// Config configures a Scanner.
type Config struct {
	Bollinger indicators.BollingerConfig
	Workers   int
}

// New creates a scanner over source.
func New(source marketdata.Source, cfg Config, logger zerolog.Logger) (*Scanner, error) {
	if source == nil {
		return nil, apperrors.NewConfigurationError("source", nil, "must not be nil")
	}
	bb, err := indicators.NewBollingerBands(cfg.Bollinger)
	if err != nil {
		return nil, err
	}
	return &Scanner{
		source:    source,
		bollinger: bb,
		engine:    patterns.NewEngine(cfg.Workers, patterns.NewRegistry()),
		logger:    logger.With().Str("component", "scanner").Logger(),
	}, nil
}

// Registry returns the pattern detectors the scanner can run.
func (s *Scanner) Registry() *patterns.Registry {
	return s.engine.Registry()
}

// Source returns the data source bars are fetched from.
func (s *Scanner) Source() marketdata.Source {
	return s.source
}

// Bollinger returns the band parameters in use.
func (s *Scanner) Bollinger() indicators.BollingerConfig {
	return s.bollinger.Config()
}

// Scan fetches the requested history and runs the single computation named
// by req.Detector. An empty detector selects Bollinger Bands.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	kind := analysis.KindBollingerBands
	bands := s.bollinger
	var detector *patterns.WindowDetector
	if req.Detector != "" {
		k, ok := analysis.ParseKind(req.Detector)
		if !ok {
			return nil, apperrors.NewConfigurationError("detector", req.Detector, apperrors.ErrUnknownDetector.Error())
		}
		kind = k
	}
	if kind != analysis.KindBollingerBands {
		d, err := s.engine.Registry().Lookup(string(kind))
		if err != nil {
			return nil, err
		}
		detector = d
	} else if req.Bollinger != nil {
		bb, err := indicators.NewBollingerBands(*req.Bollinger)
		if err != nil {
			return nil, err
		}
		bands = bb
	}

	result, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	result.Detector = kind

	start := time.Now()
	logger := logging.WithDetector(logging.WithSymbol(s.logger, result.Symbol), string(kind))
	if detector == nil {
		derived, err := bands.Calculate(result.Series)
		if err != nil {
			logger.Error().Err(err).Msg("Bollinger calculation failed")
			return nil, err
		}
		result.Bollinger = derived
	} else {
		detection, err := detector.Detect(result.Series)
		if err != nil {
			logger.Error().Err(err).Msg("Pattern detection failed")
			return nil, err
		}
		result.Detection = &detection
	}

	logging.LogScan(s.logger, result.Symbol, string(kind), result.Series.Len(), result.Matches(), time.Since(start))
	return result, nil
}

// ScanAll fetches the requested history once and runs every pattern detector
// over it in parallel. req.Detector is ignored.
func (s *Scanner) ScanAll(ctx context.Context, req Request) ([]*Result, error) {
	base, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	detections, err := s.engine.DetectAll(ctx, base.Series)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	results := make([]*Result, len(detections))
	for i := range detections {
		r := *base
		r.Detector = analysis.Kind(detections[i].Detector)
		r.Detection = &detections[i]
		results[i] = &r
		logging.LogScan(s.logger, r.Symbol, detections[i].Detector, r.Series.Len(), r.Matches(), elapsed)
	}
	return results, nil
}

func (s *Scanner) fetch(ctx context.Context, req Request) (*Result, error) {
	hreq, err := req.history().Normalize()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	series, err := s.source.Fetch(ctx, hreq)
	logging.LogFetch(s.logger, s.source.Name(), hreq.Symbol, series.Len(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, apperrors.NewDataError(s.source.Name(), hreq.Symbol, "source returned an invalid series", err)
	}

	return &Result{
		Symbol:   hreq.Symbol,
		Source:   s.source.Name(),
		Interval: hreq.Interval,
		Period:   hreq.Period,
		Series:   series,
		Bars:     series.Bars(),
	}, nil
}

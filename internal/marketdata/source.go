// Package marketdata provides the data sources that turn a ticker into a
// chronological bar series.
package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chart-scanner/internal/config"
	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
	"chart-scanner/internal/store"
	"chart-scanner/pkg/utils"
)

// Source fetches historical bars for one instrument.
type Source interface {
	Fetch(ctx context.Context, req HistoryRequest) (models.Series, error)
	Name() string
}

// HistoryRequest selects the bars to fetch.
type HistoryRequest struct {
	Symbol   string
	Interval models.Interval
	Period   models.Period
}

// Normalize trims the symbol and fills in the default interval and period.
// It rejects an empty symbol and values outside the supported sets.
func (r HistoryRequest) Normalize() (HistoryRequest, error) {
	r.Symbol = strings.TrimSpace(r.Symbol)
	if r.Symbol == "" {
		return r, apperrors.NewInputError("symbol", -1, "must not be empty")
	}
	iv, err := models.ParseInterval(string(r.Interval))
	if err != nil {
		return r, err
	}
	p, err := models.ParsePeriod(string(r.Period))
	if err != nil {
		return r, err
	}
	r.Interval, r.Period = iv, p
	return r, nil
}

func (r HistoryRequest) String() string {
	return fmt.Sprintf("%s %s/%s", r.Symbol, r.Interval, r.Period)
}

// New builds the source named in cfg.Data.Source. When bars is non-nil and
// the cache is enabled the source is wrapped in a CachedSource.
func New(cfg *config.Config, bars store.BarStore, logger zerolog.Logger) (Source, error) {
	var src Source
	switch cfg.Data.Source {
	case config.SourceYahoo, "":
		src = NewYahooSource(YahooConfig{
			BaseURL: cfg.Data.BaseURL,
			Proxy:   cfg.Data.Proxy,
			Timeout: cfg.Data.Timeout,
			Retry:   retryConfig(cfg.Data.Retries),
		}, logger)
	case config.SourceKite:
		kite, err := NewKiteSource(KiteConfig{
			APIKey:      cfg.Kite.APIKey,
			AccessToken: cfg.Kite.AccessToken,
			Exchange:    cfg.Kite.Exchange,
			Retry:       retryConfig(cfg.Data.Retries),
		}, logger)
		if err != nil {
			return nil, err
		}
		src = kite
	case config.SourceCSV:
		src = NewCSVSource(cfg.Data.CSVDir)
	default:
		return nil, apperrors.NewConfigurationError("data.source", cfg.Data.Source, "unknown data source")
	}

	if bars != nil && cfg.Cache.Enabled {
		src = NewCachedSource(src, bars, cfg.Cache.TTL, logger)
	}
	return src, nil
}

func retryConfig(retries int) utils.RetryConfig {
	rc := utils.DefaultRetryConfig()
	rc.MaxAttempts = retries + 1
	return rc
}

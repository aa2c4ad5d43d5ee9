package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chart-scanner/internal/models"
	"chart-scanner/internal/store"
)

// CachedSource wraps a Source with the local bar store. A fetch younger than
// the TTL is served from the store; otherwise the inner source is called and
// its bars saved. When the inner source fails, any cached bars are returned
// instead.
type CachedSource struct {
	inner  Source
	bars   store.BarStore
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewCachedSource creates a cached source.
func NewCachedSource(inner Source, bars store.BarStore, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		bars:   bars,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("source", inner.Name()).Str("layer", "cache").Logger(),
	}
}

// Name reports the wrapped source so cached and live bars share a key.
func (c *CachedSource) Name() string { return c.inner.Name() }

// Fetch returns the bars for req from the cache when fresh, or from the
// wrapped source.
func (c *CachedSource) Fetch(ctx context.Context, req HistoryRequest) (models.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Series{}, err
	}
	key := store.SeriesKey{Source: c.inner.Name(), Symbol: req.Symbol, Interval: req.Interval}
	now := c.now()

	lastFetch, err := c.bars.GetLastFetch(ctx, key, req.Period)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("Cache lookup failed")
	}

	freshness := store.NewFreshness(lastFetch, c.ttl, now)
	if freshness.IsFresh {
		cached, err := c.bars.GetBars(ctx, key, req.Period.Start(lastFetch), time.Time{})
		if err == nil && len(cached) > 0 {
			c.logger.Debug().Str("symbol", req.Symbol).Int("bars", len(cached)).
				Str("age", freshness.Age.Round(time.Second).String()).Msg("Serving bars from cache")
			return models.NewSeries(req.Symbol, cached), nil
		}
	}

	series, fetchErr := c.inner.Fetch(ctx, req)
	if fetchErr != nil {
		// Fall back to whatever the cache holds.
		if ctx.Err() == nil && !lastFetch.IsZero() {
			cached, err := c.bars.GetBars(ctx, key, req.Period.Start(lastFetch), time.Time{})
			if err == nil && len(cached) > 0 {
				c.logger.Warn().Err(fetchErr).Str("symbol", req.Symbol).
					Str("freshness", store.FormatFreshness(freshness)).Msg("Fetch failed, using cached bars")
				return models.NewSeries(req.Symbol, cached), nil
			}
		}
		return models.Series{}, fetchErr
	}

	// Cache write failures are not fatal.
	if err := c.bars.SaveBars(ctx, key, series.Bars()); err != nil {
		c.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("Failed to cache bars")
	} else if err := c.bars.SetLastFetch(ctx, key, req.Period, now); err != nil {
		c.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("Failed to record fetch")
	}

	return series, nil
}

// Package store provides the local bar cache.
package store

import (
	"context"
	"time"

	"chart-scanner/internal/models"
)

// SeriesKey identifies one cached bar series.
type SeriesKey struct {
	Source   string          `json:"source"`
	Symbol   string          `json:"symbol"`
	Interval models.Interval `json:"interval"`
}

// BarStore defines the interface for bar persistence.
type BarStore interface {
	// Bars
	SaveBars(ctx context.Context, key SeriesKey, bars []models.Bar) error
	GetBars(ctx context.Context, key SeriesKey, from, to time.Time) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, key SeriesKey) (time.Time, error)

	// Fetch bookkeeping, keyed by the requested period as well so that a
	// short fetch never satisfies a longer request.
	GetLastFetch(ctx context.Context, key SeriesKey, period models.Period) (time.Time, error)
	SetLastFetch(ctx context.Context, key SeriesKey, period models.Period, t time.Time) error

	// Maintenance
	Clear(ctx context.Context, symbol string) (int64, error)
	Stats(ctx context.Context) ([]SeriesStats, error)

	// Lifecycle
	Close() error
}

// SeriesStats summarises one cached series.
type SeriesStats struct {
	Key       SeriesKey `json:"key"`
	Bars      int       `json:"bars"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
	LastFetch time.Time `json:"last_fetch"`
}

// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

// SQLiteStore implements BarStore using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	fetchTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based bar store, creating the parent
// directory when needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:         db,
		fetchTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Bars table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, symbol, interval, timestamp)
	);

	-- Last successful fetch per series and period
	CREATE TABLE IF NOT EXISTS fetch_status (
		source TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		period TEXT NOT NULL,
		last_fetch DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source, symbol, interval, period)
	);

	CREATE INDEX IF NOT EXISTS idx_bars_series ON bars(source, symbol, interval);
	CREATE INDEX IF NOT EXISTS idx_bars_timestamp ON bars(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars Methods
// ============================================================================

// SaveBars saves bars to the database, replacing bars with the same
// timestamp.
func (s *SQLiteStore) SaveBars(ctx context.Context, key SeriesKey, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (source, symbol, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, key.Source, key.Symbol, string(key.Interval),
			b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return dbError("failed to insert bar", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// GetBars retrieves bars in [from, to] ordered by timestamp. A zero from or
// to leaves that side open.
func (s *SQLiteStore) GetBars(ctx context.Context, key SeriesKey, from, to time.Time) ([]models.Bar, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE source = ? AND symbol = ? AND interval = ?`
	args := []interface{}{key.Source, key.Symbol, string(key.Interval)}

	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, dbError("failed to scan bar", err)
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating bars", err)
	}

	return bars, nil
}

// GetBarsFreshness returns the timestamp of the most recent bar.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, key SeriesKey) (time.Time, error) {
	var timestamp sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM bars WHERE source = ? AND symbol = ? AND interval = ?
	`, key.Source, key.Symbol, string(key.Interval)).Scan(&timestamp)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, dbError("failed to get bars freshness", err)
	}
	if !timestamp.Valid {
		return time.Time{}, nil
	}
	return parseTimestamp(timestamp.String)
}

// ============================================================================
// Fetch Methods
// ============================================================================

func fetchKey(key SeriesKey, period models.Period) string {
	return strings.Join([]string{key.Source, key.Symbol, string(key.Interval), string(period)}, "|")
}

// GetLastFetch returns when the series was last fetched for period. The zero
// time means never.
func (s *SQLiteStore) GetLastFetch(ctx context.Context, key SeriesKey, period models.Period) (time.Time, error) {
	k := fetchKey(key, period)

	s.mu.RLock()
	if t, ok := s.fetchTimes[k]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	var lastFetch time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_fetch FROM fetch_status
		WHERE source = ? AND symbol = ? AND interval = ? AND period = ?
	`, key.Source, key.Symbol, string(key.Interval), string(period)).Scan(&lastFetch)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, dbError("failed to get last fetch", err)
	}

	s.mu.Lock()
	s.fetchTimes[k] = lastFetch
	s.mu.Unlock()

	return lastFetch, nil
}

// SetLastFetch records a successful fetch.
func (s *SQLiteStore) SetLastFetch(ctx context.Context, key SeriesKey, period models.Period, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fetch_status (source, symbol, interval, period, last_fetch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key.Source, key.Symbol, string(key.Interval), string(period), t.UTC(), time.Now().UTC())
	if err != nil {
		return dbError("failed to set last fetch", err)
	}

	s.mu.Lock()
	s.fetchTimes[fetchKey(key, period)] = t.UTC()
	s.mu.Unlock()

	return nil
}

// ============================================================================
// Maintenance Methods
// ============================================================================

// Clear removes the cached bars and fetch records of symbol, or of every
// symbol when symbol is empty. It returns the number of bars removed.
func (s *SQLiteStore) Clear(ctx context.Context, symbol string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	where, args := "", []interface{}{}
	if symbol != "" {
		where, args = " WHERE symbol = ?", []interface{}{symbol}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM bars"+where, args...)
	if err != nil {
		return 0, dbError("failed to clear bars", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM fetch_status"+where, args...); err != nil {
		return 0, dbError("failed to clear fetch status", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, dbError("failed to commit transaction", err)
	}

	s.mu.Lock()
	s.fetchTimes = make(map[string]time.Time)
	s.mu.Unlock()

	return removed, nil
}

// Stats returns one summary per cached series ordered by symbol.
func (s *SQLiteStore) Stats(ctx context.Context) ([]SeriesStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.source, b.symbol, b.interval, COUNT(*), MIN(b.timestamp), MAX(b.timestamp),
			(SELECT MAX(f.last_fetch) FROM fetch_status f
			 WHERE f.source = b.source AND f.symbol = b.symbol AND f.interval = b.interval)
		FROM bars b
		GROUP BY b.source, b.symbol, b.interval
		ORDER BY b.symbol, b.source, b.interval
	`)
	if err != nil {
		return nil, dbError("failed to query stats", err)
	}
	defer rows.Close()

	var stats []SeriesStats
	for rows.Next() {
		var (
			st                     SeriesStats
			interval               string
			first, last, lastFetch sql.NullString
		)
		if err := rows.Scan(&st.Key.Source, &st.Key.Symbol, &interval, &st.Bars, &first, &last, &lastFetch); err != nil {
			return nil, dbError("failed to scan stats", err)
		}
		st.Key.Interval = models.Interval(interval)
		for _, f := range []struct {
			raw sql.NullString
			dst *time.Time
		}{{first, &st.First}, {last, &st.Last}, {lastFetch, &st.LastFetch}} {
			if !f.raw.Valid {
				continue
			}
			t, err := parseTimestamp(f.raw.String)
			if err != nil {
				return nil, err
			}
			*f.dst = t
		}
		stats = append(stats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating stats", err)
	}

	return stats, nil
}

// Aggregates come back as text because SQLite drops the column type.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSuffix(raw, "Z")
	for _, layout := range timestampFormats {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, dbError("failed to parse timestamp", fmt.Errorf("%q", raw))
}

func dbError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %v", msg, apperrors.ErrDatabaseError, err)
}

package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

const yahooExport = `Date,Open,High,Low,Close,Adj Close,Volume
2023-01-04,126.89,128.66,125.08,126.36,125.66,89113600
2023-01-03,130.28,130.90,124.17,125.07,124.38,112117500
2023-01-05,127.13,127.77,124.76,125.02,124.33,80962700
2023-01-06,null,null,null,null,null,null
2024-01-05,181.99,182.76,180.17,181.18,180.72,62303300
`

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCSVFetch(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL.csv", yahooExport)

	series, err := NewCSVSource(dir).Fetch(context.Background(), HistoryRequest{Symbol: "aapl", Period: models.PeriodMax})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if series.Len() != 4 {
		t.Fatalf("expected 4 complete rows, got %d", series.Len())
	}
	if err := series.Validate(); err != nil {
		t.Errorf("series should be valid: %v", err)
	}
	first, _ := series.At(0)
	if !first.Timestamp.Equal(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)) || first.Close != 125.07 || first.Volume != 112117500 {
		t.Errorf("unexpected first bar %+v", first)
	}
}

func TestCSVPeriodRelativeToLastBar(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL.csv", yahooExport)

	series, err := NewCSVSource(dir).Fetch(context.Background(), HistoryRequest{Symbol: "AAPL", Period: models.Period1Month})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if series.Len() != 1 {
		t.Errorf("expected only the 2024 bar, got %d", series.Len())
	}
}

func TestCSVLowerCaseHeaderAndExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "custom.csv", "\xef\xbb\xbfdate,open,high,low,close,volume\r\n2024-02-01,10,11,9,10.5,100\r\n2024-02-02,10.5,12,10,11.5,\r\n")

	series, err := NewCSVSource("").Fetch(context.Background(), HistoryRequest{Symbol: path})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if series.Symbol() != "custom" || series.Len() != 2 {
		t.Errorf("symbol = %s, len = %d", series.Symbol(), series.Len())
	}
	last, _ := series.At(1)
	if last.Volume != 0 || last.High != 12 {
		t.Errorf("unexpected last bar %+v", last)
	}
}

func TestCSVErrors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "EMPTY.csv", "Date,Open,High,Low,Close,Volume\n2024-01-01,null,null,null,null,0\n")

	src := NewCSVSource(dir)
	if _, err := src.Fetch(context.Background(), HistoryRequest{Symbol: "MISSING"}); !apperrors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("missing file: got %v", err)
	}
	if _, err := src.Fetch(context.Background(), HistoryRequest{Symbol: "EMPTY"}); !apperrors.Is(err, apperrors.ErrNoData) {
		t.Errorf("empty file: got %v", err)
	}
}

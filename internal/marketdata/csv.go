package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

// CSVSource implements Source over OHLCV files in the Yahoo export layout:
// Date,Open,High,Low,Close[,Adj Close],Volume. A symbol resolves to
// <dir>/<SYMBOL>.csv unless it already names a .csv file.
//
// The period is applied relative to the newest bar in the file, so a stale
// export still yields a full window. The interval is not resampled.
type CSVSource struct {
	dir string
}

// NewCSVSource creates a source reading from dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (c *CSVSource) Name() string { return "csv" }

type csvRow struct {
	Date   csvTime  `csv:"Date"`
	Open   csvFloat `csv:"Open"`
	High   csvFloat `csv:"High"`
	Low    csvFloat `csv:"Low"`
	Close  csvFloat `csv:"Close"`
	Volume csvFloat `csv:"Volume"`
}

type csvTime struct {
	Time time.Time
}

var csvTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"01/02/2006",
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *csvTime) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	return fmt.Errorf("unrecognised date %q", s)
}

// csvFloat is a number that may be missing ("", "null", "NaN").
type csvFloat struct {
	Value float64
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (f *csvFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "nan", "-":
		*f = csvFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return err
	}
	*f = csvFloat{Value: v, Valid: true}
	return nil
}

var csvHeaderAliases = map[string]string{
	"date":      "Date",
	"datetime":  "Date",
	"timestamp": "Date",
	"time":      "Date",
	"open":      "Open",
	"high":      "High",
	"low":       "Low",
	"close":     "Close",
	"adj close": "Adj Close",
	"adj_close": "Adj Close",
	"volume":    "Volume",
}

// normalizeHeader rewrites the header line to the canonical column names so
// lower-case and snake_case exports decode too.
func normalizeHeader(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		end = len(data)
	}
	header := strings.TrimRight(string(data[:end]), "\r")
	cols := strings.Split(header, ",")
	for i, col := range cols {
		if canonical, ok := csvHeaderAliases[strings.ToLower(strings.Trim(col, " \""))]; ok {
			cols[i] = canonical
		}
	}
	out := []byte(strings.Join(cols, ","))
	return append(out, data[end:]...)
}

func (c *CSVSource) path(symbol string) (string, error) {
	if strings.HasSuffix(strings.ToLower(symbol), ".csv") {
		return symbol, nil
	}
	candidates := []string{
		filepath.Join(c.dir, symbol+".csv"),
		filepath.Join(c.dir, strings.ToUpper(symbol)+".csv"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", apperrors.NewDataError(c.Name(), symbol,
		fmt.Sprintf("no file %s", candidates[0]), apperrors.ErrSymbolNotFound)
}

// Fetch reads the file for req.Symbol. Rows with a missing price are
// skipped; a missing volume is recorded as zero.
func (c *CSVSource) Fetch(ctx context.Context, req HistoryRequest) (models.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Series{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Series{}, err
	}

	path, err := c.path(req.Symbol)
	if err != nil {
		return models.Series{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Series{}, apperrors.NewDataError(c.Name(), req.Symbol, "reading file", err)
	}

	var rows []*csvRow
	if err := gocsv.Unmarshal(bytes.NewReader(normalizeHeader(data)), &rows); err != nil {
		return models.Series{}, apperrors.NewDataError(c.Name(), req.Symbol, "parsing "+filepath.Base(path), err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		if !r.Open.Valid || !r.High.Valid || !r.Low.Valid || !r.Close.Valid {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: r.Date.Time,
			Open:      r.Open.Value,
			High:      r.High.Value,
			Low:       r.Low.Value,
			Close:     r.Close.Value,
			Volume:    int64(r.Volume.Value),
		})
	}
	if len(bars) == 0 {
		return models.Series{}, apperrors.NewDataError(c.Name(), req.Symbol, "file holds no complete rows", apperrors.ErrNoData)
	}

	bars = models.SortBars(bars)
	if req.Period != models.PeriodMax {
		start := req.Period.Start(bars[len(bars)-1].Timestamp)
		first := 0
		for first < len(bars) && bars[first].Timestamp.Before(start) {
			first++
		}
		bars = bars[first:]
	}

	symbol := req.Symbol
	if strings.HasSuffix(strings.ToLower(symbol), ".csv") {
		symbol = filepath.Base(symbol)
		symbol = symbol[:len(symbol)-len(".csv")]
	}
	return models.NewSeries(symbol, bars), nil
}

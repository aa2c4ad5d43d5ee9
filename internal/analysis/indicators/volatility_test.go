package indicators

import (
	"math"
	"testing"
	"time"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

func seriesFromCloses(closes ...float64) models.Series {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return models.NewSeries("TEST", bars)
}

func mustBands(t *testing.T, window int, multiplier float64) *BollingerBands {
	t.Helper()
	bb, err := NewBollingerBands(BollingerConfig{Window: window, Multiplier: multiplier})
	if err != nil {
		t.Fatalf("NewBollingerBands: %v", err)
	}
	return bb
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestBollingerConstantCloses(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	out, err := mustBands(t, 20, 2).Calculate(seriesFromCloses(closes...))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	for i := 0; i < 19; i++ {
		if out.SMA[i].Valid || out.StdDev[i].Valid || out.Upper[i].Valid || out.Lower[i].Valid {
			t.Errorf("row %d should be undefined", i)
		}
		if out.Buy[i] || out.Sell[i] {
			t.Errorf("row %d should carry no signal", i)
		}
	}
	for i := 19; i < 25; i++ {
		if out.StdDev[i].Float != 0 {
			t.Errorf("std[%d] = %v, want 0", i, out.StdDev[i].Float)
		}
		if out.SMA[i].Float != 100 || out.Upper[i].Float != 100 || out.Lower[i].Float != 100 {
			t.Errorf("row %d: sma=%v upper=%v lower=%v, want 100", i, out.SMA[i].Float, out.Upper[i].Float, out.Lower[i].Float)
		}
		if out.Buy[i] || out.Sell[i] {
			t.Errorf("row %d should carry no signal", i)
		}
	}
	if out.BuySignals().Len() != 0 || out.SellSignals().Len() != 0 {
		t.Errorf("expected no signals")
	}
}

func TestBollingerSampleStdDev(t *testing.T) {
	out, err := mustBands(t, 3, 2).Calculate(seriesFromCloses(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	// window [1,2,3]: mean 2, sample variance (1+0+1)/2 = 1
	if !approx(out.SMA[2].Float, 2) || !approx(out.StdDev[2].Float, 1) {
		t.Errorf("row 2: sma=%v std=%v", out.SMA[2].Float, out.StdDev[2].Float)
	}
	if !approx(out.Upper[2].Float, 4) || !approx(out.Lower[2].Float, 0) {
		t.Errorf("row 2: upper=%v lower=%v", out.Upper[2].Float, out.Lower[2].Float)
	}
	if !approx(out.SMA[3].Float, 3) || !approx(out.Upper[3].Float, 5) || !approx(out.Lower[3].Float, 1) {
		t.Errorf("row 3: sma=%v upper=%v lower=%v", out.SMA[3].Float, out.Upper[3].Float, out.Lower[3].Float)
	}
}

func TestBollingerBreakouts(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		wantBuy  bool
		wantSell bool
	}{
		{"breakout above", []float64{10, 10, 10, 10, 20}, true, false},
		{"breakdown below", []float64{10, 10, 10, 10, 0}, false, true},
		{"inside bands", []float64{10, 11, 10, 11, 10}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := mustBands(t, 3, 1).Calculate(seriesFromCloses(tt.closes...))
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			last := len(tt.closes) - 1
			if out.Buy[last] != tt.wantBuy || out.Sell[last] != tt.wantSell {
				t.Errorf("buy=%v sell=%v, want %v/%v (upper=%v lower=%v)",
					out.Buy[last], out.Sell[last], tt.wantBuy, tt.wantSell, out.Upper[last].Float, out.Lower[last].Float)
			}
			if tt.wantBuy && !out.BuySignals().Contains(last) {
				t.Errorf("BuySignals missing %d", last)
			}
			if tt.wantSell && !out.SellSignals().Contains(last) {
				t.Errorf("SellSignals missing %d", last)
			}
		})
	}
}

func TestBollingerShortAndEmptySeries(t *testing.T) {
	bb := mustBands(t, 20, 2)

	out, err := bb.Calculate(seriesFromCloses(42))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if out.Len() != 1 || out.SMA[0].Valid || out.Upper[0].Valid || out.Buy[0] || out.Sell[0] {
		t.Errorf("single bar should be fully undefined: %+v", out)
	}

	out, err = bb.Calculate(models.NewSeries("EMPTY", nil))
	if err != nil {
		t.Fatalf("empty series should not fail: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Len = %d, want 0", out.Len())
	}
}

func TestBollingerWindowOne(t *testing.T) {
	out, err := mustBands(t, 1, 2).Calculate(seriesFromCloses(5, 7, 6))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	for i, c := range []float64{5, 7, 6} {
		if out.SMA[i].Float != c || out.StdDev[i].Float != 0 || out.Buy[i] || out.Sell[i] {
			t.Errorf("row %d: %+v %+v", i, out.SMA[i], out.StdDev[i])
		}
	}
}

func TestBollingerInvalidConfig(t *testing.T) {
	tests := []BollingerConfig{
		{Window: 0, Multiplier: 2},
		{Window: -5, Multiplier: 2},
		{Window: 20, Multiplier: 0},
		{Window: 20, Multiplier: -1},
		{Window: 20, Multiplier: math.NaN()},
	}
	for _, cfg := range tests {
		if _, err := NewBollingerBands(cfg); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
			t.Errorf("config %+v: expected configuration error, got %v", cfg, err)
		}
	}
}

func TestBollingerRejectsBadInput(t *testing.T) {
	s := models.NewSeries("BAD", []models.Bar{
		{Timestamp: time.Unix(200, 0), Close: 1},
		{Timestamp: time.Unix(100, 0), Close: 2},
	})
	if _, err := mustBands(t, 2, 2).Calculate(s); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected input error, got %v", err)
	}

	s = seriesFromCloses(1, math.Inf(-1), 3)
	if _, err := mustBands(t, 2, 2).Calculate(s); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected input error for -Inf, got %v", err)
	}
}

func TestBandwidthAndPercentB(t *testing.T) {
	out, err := mustBands(t, 3, 2).Calculate(seriesFromCloses(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if out.Bandwidth(0).Valid {
		t.Errorf("bandwidth before the first window should be undefined")
	}
	// row 2: upper 4, lower 0, middle 2
	if bw := out.Bandwidth(2); !bw.Valid || !approx(bw.Float, 2) {
		t.Errorf("bandwidth = %+v, want 2", bw)
	}
	if pb := out.PercentB(2, 3); !pb.Valid || !approx(pb.Float, 0.75) {
		t.Errorf("%%B = %+v, want 0.75", pb)
	}
}

package patterns

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"chart-scanner/internal/analysis"
	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/models"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()

	kinds := r.Kinds()
	if len(kinds) != 7 {
		t.Fatalf("expected 7 pattern kinds, got %d", len(kinds))
	}
	if kinds[0] != analysis.KindHeadAndShoulders || kinds[6] != analysis.KindGaps {
		t.Errorf("unexpected order: %v", kinds)
	}

	tests := []struct {
		name string
		want string
	}{
		{"HeadAndShoulders", "HeadAndShoulders"},
		{"head and shoulders", "HeadAndShoulders"},
		{"Double Top and Double Bottom", "DoubleTopBottom"},
		{"flags-pennants", "FlagsPennants"},
		{"cup", "CupAndHandle"},
		{"GAPS", "Gaps"},
	}
	for _, tt := range tests {
		d, err := r.Lookup(tt.name)
		if err != nil {
			t.Errorf("Lookup(%q): %v", tt.name, err)
			continue
		}
		if d.Name() != tt.want {
			t.Errorf("Lookup(%q) = %s, want %s", tt.name, d.Name(), tt.want)
		}
	}
}

func TestRegistryLookupErrors(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"", "fibonacci", "BollingerBands"} {
		_, err := r.Lookup(name)
		if err == nil {
			t.Errorf("Lookup(%q): expected error", name)
			continue
		}
		var cfgErr *apperrors.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Lookup(%q): expected configuration error, got %T", name, err)
		}
	}
}

func TestRegistryKindsIsACopy(t *testing.T) {
	r := NewRegistry()
	kinds := r.Kinds()
	kinds[0] = analysis.KindGaps
	if r.Kinds()[0] != analysis.KindHeadAndShoulders {
		t.Errorf("Kinds exposed internal state")
	}
}

func TestEngineDetectSelected(t *testing.T) {
	e := NewEngine(2, nil)
	s := closesOnly(100, 101, 102, 101, 100, 99, 98, 99)

	got, err := e.DetectSelected(context.Background(), s, []analysis.Kind{
		analysis.KindGaps,
		analysis.KindBollingerBands,
		analysis.KindCupAndHandle,
	})
	if err != nil {
		t.Fatalf("DetectSelected: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(got))
	}
	if got[0].Detector != string(analysis.KindGaps) || got[1].Detector != string(analysis.KindCupAndHandle) {
		t.Errorf("unexpected detectors: %s, %s", got[0].Detector, got[1].Detector)
	}
}

func TestEngineRejectsInvalidSeries(t *testing.T) {
	e := NewEngine(0, nil)
	bad := models.NewSeries("BAD", []models.Bar{
		{Timestamp: time.Unix(200, 0), Close: 1},
		{Timestamp: time.Unix(100, 0), Close: math.Inf(1)},
	})
	if _, err := e.DetectAll(context.Background(), bad); !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestEngineCancelled(t *testing.T) {
	e := NewEngine(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.DetectAll(ctx, closesOnly(1, 2, 3, 4, 5, 6)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

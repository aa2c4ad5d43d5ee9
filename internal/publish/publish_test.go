package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chart-scanner/internal/analysis"
	"chart-scanner/internal/scanner"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	flushes  int
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	f.flushes++
	return ctx.Err()
}

func (f *fakeConn) Close() { f.closed = true }

func TestSubject(t *testing.T) {
	p := newNATSPublisher(&fakeConn{}, "charts.", zerolog.Nop())

	tests := []struct {
		detector, symbol, want string
	}{
		{"Gaps", "AAPL", "charts.Gaps.AAPL"},
		{"Triangles", "RELIANCE.NS", "charts.Triangles.RELIANCE_NS"},
		{"Wedges", "^GSPC", "charts.Wedges.^GSPC"},
		{"Gaps", "BRK B", "charts.Gaps.BRK_B"},
		{"Gaps", "", "charts.Gaps._"},
	}
	for _, tt := range tests {
		if got := p.Subject(tt.detector, tt.symbol); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.detector, tt.symbol, got, tt.want)
		}
	}

	if got := newNATSPublisher(&fakeConn{}, "", zerolog.Nop()).Subject("Gaps", "X"); got != "scanner.Gaps.X" {
		t.Errorf("default prefix: %s", got)
	}
}

func TestPublish(t *testing.T) {
	nc := &fakeConn{}
	p := newNATSPublisher(nc, "scan", zerolog.Nop())

	result := &scanner.Result{
		Symbol:    "INFY.NS",
		Detector:  analysis.KindGaps,
		Detection: &analysis.Detection{Detector: "Gaps", Sets: []analysis.MatchSet{{Name: "breakaway", Indices: []int{2, 5}}}},
	}
	if err := p.Publish(context.Background(), result); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(nc.subjects) != 1 || nc.subjects[0] != "scan.Gaps.INFY_NS" || nc.flushes != 1 {
		t.Fatalf("subjects = %v, flushes = %d", nc.subjects, nc.flushes)
	}

	var decoded scanner.Result
	if err := json.Unmarshal(nc.payloads[0], &decoded); err != nil {
		t.Fatalf("payload is not a result: %v", err)
	}
	if decoded.Symbol != "INFY.NS" || decoded.Detection == nil || decoded.Detection.Total() != 2 {
		t.Errorf("unexpected payload %s", nc.payloads[0])
	}

	p.Close()
	if !nc.closed {
		t.Errorf("Close should close the connection")
	}
}

func TestPublishErrors(t *testing.T) {
	nc := &fakeConn{err: errors.New("connection closed")}
	p := newNATSPublisher(nc, "scan", zerolog.Nop())
	if err := p.Publish(context.Background(), &scanner.Result{Symbol: "X"}); err == nil {
		t.Errorf("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = newNATSPublisher(&fakeConn{}, "scan", zerolog.Nop())
	if err := p.Publish(ctx, &scanner.Result{Symbol: "X"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected flush cancellation, got %v", err)
	}
}

package errors

import (
	"fmt"
	"testing"
)

func TestInputErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("building series: %w", NewInputError("close", 3, "non-finite value NaN"))

	if !Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in chain, got %v", err)
	}

	var ie *InputError
	if !As(err, &ie) {
		t.Fatalf("expected *InputError in chain")
	}
	if ie.Index != 3 || ie.Field != "close" {
		t.Errorf("unexpected fields: %+v", ie)
	}
}

func TestInputErrorMessage(t *testing.T) {
	tests := []struct {
		err  *InputError
		want string
	}{
		{NewInputError("timestamp", 2, "out of order"), "input error: timestamp at bar 2: out of order"},
		{NewInputError("symbol", -1, "empty"), "input error: symbol: empty"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("window", 0, "must be positive")
	if !Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid")
	}
	want := "configuration error: window (0): must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDataErrorWrapsCause(t *testing.T) {
	err := NewDataError("yahoo", "AAPL", "empty chart", ErrNoData)
	if !Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData in chain")
	}
	if Is(NewDataError("yahoo", "AAPL", "bad status", nil), ErrNoData) {
		t.Errorf("nil cause should not match ErrNoData")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Errorf("Wrapf(nil) should be nil")
	}
	if got := Wrapf(ErrNoData, "fetch %s", "X").Error(); got != "fetch X: no data" {
		t.Errorf("Wrapf = %q", got)
	}
}

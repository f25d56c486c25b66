package trade

import (
	"errors"
	"testing"
)

func validSpec() Spec {
	return Spec{
		Symbol:    "EURUSD",
		Direction: Long,
		Quantity:  1.0,
		Entry:     1.0850,
		FibLow:    1.0800,
		FibHigh:   1.0900,
	}
}

func TestValidateAcceptsSpec(t *testing.T) {
	if err := validSpec().Validate(); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	spec := validSpec()
	spec.FibLow = 1.09
	spec.FibHigh = 1.08
	if err := spec.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestValidateRejectsZeroQuantity(t *testing.T) {
	spec := validSpec()
	spec.Quantity = 0
	if err := spec.Validate(); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestParseSide(t *testing.T) {
	cases := []struct {
		in   string
		want Direction
	}{
		{"buy", Long},
		{"SELL", Short},
		{"long", Long},
		{" short ", Short},
	}
	for _, tc := range cases {
		got, err := ParseSide(tc.in)
		if err != nil {
			t.Fatalf("ParseSide(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSide(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if _, err := ParseSide("hold"); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}

func TestDirectionSign(t *testing.T) {
	if Long.Sign() != 1 || Short.Sign() != -1 {
		t.Fatalf("unexpected direction signs")
	}
	if Long.Opposite() != Short || Short.Opposite() != Long {
		t.Fatalf("unexpected opposite directions")
	}
}

func TestEntryInRange(t *testing.T) {
	spec := validSpec()
	if !spec.EntryInRange() {
		t.Fatalf("expected entry inside range")
	}
	spec.Entry = 1.10
	if spec.EntryInRange() {
		t.Fatalf("expected entry outside range")
	}
}

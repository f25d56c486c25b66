package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"fib-retest-bot/internal/trade"
)

func newLedger(dir trade.Direction) *Ledger {
	return New(trade.Spec{
		Symbol:    "EURUSD",
		Direction: dir,
		Quantity:  1.0,
		Entry:     1.0850,
		FibLow:    1.0800,
		FibHigh:   1.0900,
	})
}

func TestRecordExitReducesRemaining(t *testing.T) {
	l := newLedger(trade.Long)
	if err := l.RecordExit(0.382, 0.30, 1.08382, time.Now()); err != nil {
		t.Fatalf("record exit: %v", err)
	}
	if math.Abs(l.Remaining()-0.70) > 1e-12 {
		t.Fatalf("remaining = %v, want 0.70", l.Remaining())
	}
	wantPnL := (1.08382 - 1.0850) * 0.30
	if math.Abs(l.RealizedPnL()-wantPnL) > 1e-12 {
		t.Fatalf("realized = %v, want %v", l.RealizedPnL(), wantPnL)
	}
}

func TestRecordExitShortSign(t *testing.T) {
	l := newLedger(trade.Short)
	if err := l.RecordExit(0.382, 0.30, 1.08618, time.Now()); err != nil {
		t.Fatalf("record exit: %v", err)
	}
	wantPnL := (1.08618 - 1.0850) * 0.30 * -1
	if math.Abs(l.RealizedPnL()-wantPnL) > 1e-12 {
		t.Fatalf("realized = %v, want %v", l.RealizedPnL(), wantPnL)
	}
}

func TestRecordExitOverExitFails(t *testing.T) {
	l := newLedger(trade.Long)
	err := l.RecordExit(0.5, 1.5, 1.085, time.Now())
	if !errors.Is(err, ErrOverExit) {
		t.Fatalf("expected ErrOverExit, got %v", err)
	}
	if l.Remaining() != 1.0 {
		t.Fatalf("remaining changed after failed exit: %v", l.Remaining())
	}
	if l.RealizedPnL() != 0 {
		t.Fatalf("realized changed after failed exit: %v", l.RealizedPnL())
	}
	if len(l.Snapshot().Exits) != 0 {
		t.Fatalf("exit history changed after failed exit")
	}
}

func TestRecordExitRejectsNonPositiveQuantity(t *testing.T) {
	l := newLedger(trade.Long)
	if err := l.RecordExit(0.5, 0, 1.085, time.Now()); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
	if err := l.RecordExit(0.5, -0.1, 1.085, time.Now()); err == nil {
		t.Fatalf("expected error for negative quantity")
	}
}

func TestQuantityConservation(t *testing.T) {
	l := newLedger(trade.Long)
	ts := time.Now()
	exits := []float64{0.30, 0.20, 0.20}
	reentries := []float64{0.30, 0.20}
	for _, q := range exits {
		if err := l.RecordExit(0.5, q, 1.085, ts); err != nil {
			t.Fatalf("exit %v: %v", q, err)
		}
	}
	for _, q := range reentries {
		if err := l.RecordReentry(0.5, q, 1.084, ts); err != nil {
			t.Fatalf("reentry %v: %v", q, err)
		}
	}
	snap := l.Snapshot()
	var exited, reentered float64
	for _, f := range snap.Exits {
		exited += f.Quantity
	}
	for _, f := range snap.Reentries {
		reentered += f.Quantity
	}
	lhs := exited - reentered
	rhs := snap.OriginalQuantity - snap.RemainingQuantity
	if math.Abs(lhs-rhs) > 1e-12 {
		t.Fatalf("conservation violated: exits-reentries=%v original-remaining=%v", lhs, rhs)
	}
}

func TestExhausted(t *testing.T) {
	l := newLedger(trade.Long)
	weights := []float64{0.30, 0.20, 0.20, 0.20, 0.10}
	for _, w := range weights {
		if err := l.RecordExit(0.5, w, 1.086, time.Now()); err != nil {
			t.Fatalf("exit: %v", err)
		}
	}
	if !l.Exhausted() {
		t.Fatalf("expected exhausted after full level set, remaining %v", l.Remaining())
	}
	if l.Remaining() != 0 {
		t.Fatalf("expected remaining clamped to zero, got %v", l.Remaining())
	}
}

func TestLastExitQuantity(t *testing.T) {
	l := newLedger(trade.Long)
	if l.LastExitQuantity() != 0 {
		t.Fatalf("expected zero before any exit")
	}
	_ = l.RecordExit(0.382, 0.30, 1.08382, time.Now())
	_ = l.RecordExit(0.500, 0.20, 1.08500, time.Now())
	if l.LastExitQuantity() != 0.20 {
		t.Fatalf("last exit = %v, want 0.20", l.LastExitQuantity())
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	l := newLedger(trade.Long)
	_ = l.RecordExit(0.382, 0.30, 1.08382, time.Now())
	snap := l.Snapshot()
	snap.Exits[0].Quantity = 99
	if l.Snapshot().Exits[0].Quantity != 0.30 {
		t.Fatalf("snapshot mutation leaked into ledger")
	}
}

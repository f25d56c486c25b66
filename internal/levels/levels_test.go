package levels

import (
	"errors"
	"math"
	"testing"

	"fib-retest-bot/internal/trade"
)

const priceEps = 1e-9

func TestComputeRejectsInvertedRange(t *testing.T) {
	if _, err := Compute(1.09, 1.08, trade.Long); !errors.Is(err, trade.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := Compute(1.08, 1.08, trade.Long); !errors.Is(err, trade.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for empty range, got %v", err)
	}
}

func TestComputeWeightsSumToOne(t *testing.T) {
	lvls, err := Compute(1.0800, 1.0900, trade.Long)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	var sum float64
	for _, lv := range lvls {
		sum += lv.Weight
	}
	if math.Abs(sum-1.0) > priceEps {
		t.Fatalf("weights sum to %v, want 1.0", sum)
	}
}

func TestComputeLongTargets(t *testing.T) {
	lvls, err := Compute(1.0800, 1.0900, trade.Long)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := []struct {
		ratio  float64
		target float64
	}{
		{0.382, 1.08382},
		{0.500, 1.08500},
		{0.618, 1.08618},
		{0.705, 1.08705},
		{0.786, 1.08786},
	}
	if len(lvls) != len(want) {
		t.Fatalf("expected %d levels, got %d", len(want), len(lvls))
	}
	for i, w := range want {
		if lvls[i].Ratio != w.ratio {
			t.Fatalf("level %d ratio = %v, want %v", i, lvls[i].Ratio, w.ratio)
		}
		if math.Abs(lvls[i].Target-w.target) > priceEps {
			t.Fatalf("level %d target = %v, want %v", i, lvls[i].Target, w.target)
		}
		if i > 0 && lvls[i].Target <= lvls[i-1].Target {
			t.Fatalf("long targets not strictly ascending at %d", i)
		}
	}
}

func TestComputeShortTargets(t *testing.T) {
	lvls, err := Compute(1.0800, 1.0900, trade.Short)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := []struct {
		ratio  float64
		target float64
	}{
		{0.382, 1.08618},
		{0.500, 1.08500},
		{0.618, 1.08382},
		{0.705, 1.08295},
		{0.786, 1.08214},
	}
	for i, w := range want {
		if lvls[i].Ratio != w.ratio {
			t.Fatalf("level %d ratio = %v, want %v", i, lvls[i].Ratio, w.ratio)
		}
		if math.Abs(lvls[i].Target-w.target) > priceEps {
			t.Fatalf("level %d target = %v, want %v", i, lvls[i].Target, w.target)
		}
		if i > 0 && lvls[i].Target >= lvls[i-1].Target {
			t.Fatalf("short targets not strictly descending at %d", i)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, _ := Compute(42.0, 58.5, trade.Long)
	b, _ := Compute(42.0, 58.5, trade.Long)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("compute not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestReached(t *testing.T) {
	lv := Level{Ratio: 0.5, Target: 100}
	if !lv.Reached(100.1, trade.Long, 0) {
		t.Fatalf("long target should be reached above target")
	}
	if lv.Reached(99.5, trade.Long, 0) {
		t.Fatalf("long target should not be reached below target")
	}
	if !lv.Reached(99.95, trade.Long, 0.1) {
		t.Fatalf("tolerance should count near misses as reached")
	}
	if !lv.Reached(99.9, trade.Short, 0) {
		t.Fatalf("short target should be reached below target")
	}
	if lv.Reached(100.5, trade.Short, 0) {
		t.Fatalf("short target should not be reached above target")
	}
}

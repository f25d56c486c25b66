package levels

import (
	"fmt"
	"sort"

	"fib-retest-bot/internal/trade"
)

// Level is one retracement target derived from a price range. Weight is
// the fraction of the original position closed when the target trades.
type Level struct {
	Ratio  float64
	Target float64
	Weight float64
}

// Exit weights per retracement ratio. The weights sum to 1.0 so the full
// level set unwinds the whole position.
var exitWeights = []Level{
	{Ratio: 0.382, Weight: 0.30},
	{Ratio: 0.500, Weight: 0.20},
	{Ratio: 0.618, Weight: 0.20},
	{Ratio: 0.705, Weight: 0.20},
	{Ratio: 0.786, Weight: 0.10},
}

// Compute derives the target price for every retracement ratio in the
// fixed policy set. Levels are returned in the order price is expected
// to reach them: ascending targets for long, descending for short.
func Compute(fibLow, fibHigh float64, dir trade.Direction) ([]Level, error) {
	if fibLow >= fibHigh {
		return nil, fmt.Errorf("%w: got [%v, %v]", trade.ErrInvalidRange, fibLow, fibHigh)
	}
	span := fibHigh - fibLow
	out := make([]Level, len(exitWeights))
	for i, lv := range exitWeights {
		target := fibLow + span*lv.Ratio
		if dir == trade.Short {
			target = fibHigh - span*lv.Ratio
		}
		out[i] = Level{Ratio: lv.Ratio, Target: target, Weight: lv.Weight}
	}
	sort.Slice(out, func(i, j int) bool {
		if dir == trade.Short {
			return out[i].Target > out[j].Target
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// Reached reports whether a price has traded through the level's target
// in the favorable direction, within tolerance.
func (l Level) Reached(price float64, dir trade.Direction, tolerance float64) bool {
	if dir == trade.Short {
		return price <= l.Target+tolerance
	}
	return price >= l.Target-tolerance
}

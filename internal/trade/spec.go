package trade

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

var (
	ErrInvalidRange    = errors.New("fib_low must be less than fib_high")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Sign maps the direction onto the multiplier used for P&L math:
// +1 for long, -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// ParseSide accepts both order-side flags (buy/sell) and explicit
// direction names.
func ParseSide(side string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy", "long":
		return Long, nil
	case "sell", "short":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown side %q", side)
	}
}

// Sample is a single price observation from a feed.
type Sample struct {
	Price float64
	Time  time.Time
}

// Spec holds the immutable parameters of one trade. StopLoss and
// TakeProfit are optional; zero means unset.
type Spec struct {
	Symbol     string
	Direction  Direction
	Quantity   float64
	Entry      float64
	FibLow     float64
	FibHigh    float64
	StopLoss   float64
	TakeProfit float64
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if s.Direction != Long && s.Direction != Short {
		return fmt.Errorf("unknown direction %q", s.Direction)
	}
	if s.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.FibLow >= s.FibHigh {
		return fmt.Errorf("%w: got [%v, %v]", ErrInvalidRange, s.FibLow, s.FibHigh)
	}
	return nil
}

// EntryInRange reports whether the entry price lies inside the
// retracement range. An entry outside the range is unusual but not
// fatal; callers log it rather than reject the spec.
func (s Spec) EntryInRange() bool {
	return s.Entry >= s.FibLow && s.Entry <= s.FibHigh
}

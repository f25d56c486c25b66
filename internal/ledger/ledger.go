package ledger

import (
	"errors"
	"fmt"
	"time"

	"fib-retest-bot/internal/trade"
)

// ErrOverExit is returned when an exit asks for more quantity than the
// position still holds. The ledger is left unchanged.
var ErrOverExit = errors.New("exit quantity exceeds remaining position")

const quantityEpsilon = 1e-9

// Fill is one executed exit or reentry. Ratio is the retracement ratio
// whose level produced the fill; zero marks closes that are not tied to
// a level (stop-loss, take-profit, final close, abort).
type Fill struct {
	Ratio    float64   `json:"ratio"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

// Ledger is the single source of truth for how much of one position is
// outstanding and what was realized. It is owned by exactly one engine
// and is not safe for concurrent use.
type Ledger struct {
	symbol    string
	entry     float64
	sign      float64
	original  float64
	remaining float64
	realized  float64
	exits     []Fill
	reentries []Fill
}

type Snapshot struct {
	Symbol            string  `json:"symbol"`
	EntryPrice        float64 `json:"entry_price"`
	OriginalQuantity  float64 `json:"original_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	RealizedPnL       float64 `json:"realized_pnl"`
	Exits             []Fill  `json:"exits"`
	Reentries         []Fill  `json:"reentries"`
}

func New(spec trade.Spec) *Ledger {
	return &Ledger{
		symbol:    spec.Symbol,
		entry:     spec.Entry,
		sign:      spec.Direction.Sign(),
		original:  spec.Quantity,
		remaining: spec.Quantity,
	}
}

// RecordExit reduces the outstanding quantity and accrues realized P&L
// at (price - entry) * quantity * direction sign.
func (l *Ledger) RecordExit(ratio, quantity, price float64, ts time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("exit quantity %v is not positive", quantity)
	}
	if quantity > l.remaining+quantityEpsilon {
		return fmt.Errorf("%w: %v > %v", ErrOverExit, quantity, l.remaining)
	}
	l.remaining -= quantity
	if l.remaining < quantityEpsilon {
		l.remaining = 0
	}
	l.realized += (price - l.entry) * quantity * l.sign
	l.exits = append(l.exits, Fill{Ratio: ratio, Quantity: quantity, Price: price, Time: ts})
	return nil
}

// RecordReentry adds quantity back after a confirmed retest.
func (l *Ledger) RecordReentry(ratio, quantity, price float64, ts time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("reentry quantity %v is not positive", quantity)
	}
	l.remaining += quantity
	l.reentries = append(l.reentries, Fill{Ratio: ratio, Quantity: quantity, Price: price, Time: ts})
	return nil
}

func (l *Ledger) Remaining() float64 { return l.remaining }

func (l *Ledger) RealizedPnL() float64 { return l.realized }

func (l *Ledger) Exhausted() bool { return l.remaining <= quantityEpsilon }

// LastExitQuantity is the quantity closed by the most recent exit, used
// by the symmetric reentry policy.
func (l *Ledger) LastExitQuantity() float64 {
	if len(l.exits) == 0 {
		return 0
	}
	return l.exits[len(l.exits)-1].Quantity
}

// Snapshot returns a deep copy for reporting; mutating it never touches
// the ledger.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Symbol:            l.symbol,
		EntryPrice:        l.entry,
		OriginalQuantity:  l.original,
		RemainingQuantity: l.remaining,
		RealizedPnL:       l.realized,
		Exits:             append([]Fill(nil), l.exits...),
		Reentries:         append([]Fill(nil), l.reentries...),
	}
}

package engine

import (
	"context"
	"errors"
	"time"

	"fib-retest-bot/internal/ledger"
	"fib-retest-bot/internal/retest"
	"fib-retest-bot/internal/trade"
)

type State string

const (
	StatePendingEntry   State = "PENDING_ENTRY"
	StateMonitoring     State = "ACTIVE_MONITORING"
	StateLevelHit       State = "LEVEL_HIT"
	StateAwaitingRetest State = "AWAITING_RETEST"
	StateReentered      State = "REENTERED"
	StateClosed         State = "CLOSED"
	StateAborted        State = "ABORTED"
)

func (s State) Terminal() bool {
	return s == StateClosed || s == StateAborted
}

// ErrFeedStall is reported when the price feed produces nothing for
// longer than the configured hard timeout.
var ErrFeedStall = errors.New("price feed stalled")

// Feed supplies price samples to the monitoring loop. Next blocks until
// a sample is available, the context ends, or the stream closes with
// io.EOF.
type Feed interface {
	Next(ctx context.Context) (trade.Sample, error)
}

// Config tunes the monitoring loop. Zero values fall back to the retest
// package defaults and an unbounded feed wait.
type Config struct {
	Retest      retest.Config
	FeedTimeout time.Duration
	// ReentrySizer overrides the symmetric reentry policy: it receives
	// the quantity just closed at the level and returns the quantity to
	// reopen. Nil means reenter exactly what was closed.
	ReentrySizer func(closed float64) float64
	// Events receives lifecycle callbacks; see Events.
	Events Events
}

// Events are optional lifecycle hooks, invoked synchronously on the
// engine goroutine after the corresponding fill is recorded. Nil
// callbacks are skipped. Hooks must not block: they run inside the
// sample loop.
type Events struct {
	EntryFilled func(ctx context.Context, quantity, price float64)
	PartialExit func(ctx context.Context, ratio, quantity, price, remaining float64)
	Reentered   func(ctx context.Context, ratio, quantity, price float64)
}

// WindowSnapshot describes the currently open retest window.
type WindowSnapshot struct {
	Ratio    float64       `json:"ratio"`
	Target   float64       `json:"target"`
	Status   retest.Status `json:"status"`
	Deadline time.Time     `json:"deadline"`
}

// Snapshot is a point-in-time view of the engine for status polling.
type Snapshot struct {
	State     State           `json:"state"`
	Symbol    string          `json:"symbol"`
	Direction trade.Direction `json:"direction"`
	Ledger    ledger.Snapshot `json:"ledger"`
	Window    *WindowSnapshot `json:"window,omitempty"`
	LastPrice float64         `json:"last_price"`
	Reason    string          `json:"reason,omitempty"`
}

// Report is the final trade summary emitted on CLOSED or ABORTED.
type Report struct {
	Symbol      string          `json:"symbol"`
	Direction   trade.Direction `json:"direction"`
	State       State           `json:"state"`
	Reason      string          `json:"reason"`
	Ledger      ledger.Snapshot `json:"ledger"`
	Residual    float64         `json:"residual_quantity"`
	CompletedAt time.Time       `json:"completed_at"`
}

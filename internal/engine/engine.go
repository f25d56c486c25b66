package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"fib-retest-bot/internal/exec"
	"fib-retest-bot/internal/ledger"
	"fib-retest-bot/internal/levels"
	"fib-retest-bot/internal/metrics"
	"fib-retest-bot/internal/retest"
	"fib-retest-bot/internal/trade"

	"go.uber.org/zap"
)

// Close attempts during an abort run on a detached context so a
// cancelled monitoring loop can still flatten the position.
const abortCloseTimeout = 10 * time.Second

// Engine drives one trade through entry, level-by-level partial exits,
// retest-confirmed reentries, and final closure. It owns its ledger and
// at most one open retest window; all transitions happen on the single
// goroutine running Run, keyed off the last observed sample, so a trade
// is replayable from a recorded sample sequence.
type Engine struct {
	spec    trade.Spec
	levels  []levels.Level
	cfg     Config
	gw      exec.Gateway
	feed    Feed
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	state       State
	book        *ledger.Ledger
	window      *retest.Detector
	windowRatio float64
	levelIdx    int
	lastPrice   float64
	reason      string
	residual    float64
	completedAt time.Time
}

// New validates the spec and computes the level set. Validation failures
// are returned before any gateway interaction.
func New(spec trade.Spec, gw exec.Gateway, feed Feed, cfg Config, log *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	lvls, err := levels.Compute(spec.FibLow, spec.FibHigh, spec.Direction)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if !spec.EntryInRange() {
		log.Warn("entry price outside retracement range",
			zap.Float64("entry", spec.Entry),
			zap.Float64("fib_low", spec.FibLow),
			zap.Float64("fib_high", spec.FibHigh),
		)
	}
	return &Engine{
		spec:    spec,
		levels:  lvls,
		cfg:     cfg,
		gw:      gw,
		feed:    feed,
		log:     log,
		metrics: m,
		state:   StatePendingEntry,
		book:    ledger.New(spec),
	}, nil
}

// Run places the entry order and consumes samples until the trade
// terminates. It returns the final report; the error is non-nil only
// when the trade ended in ABORTED.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	if err := e.enter(ctx); err != nil {
		e.abort(fmt.Sprintf("entry failed: %v", err), 0)
		return e.Report(), err
	}
	for {
		sample, err := e.nextSample(ctx)
		if err != nil {
			e.terminateOnFeedError(ctx, err)
			return e.finish()
		}
		e.observe(sample)
		e.step(ctx, sample)
		if e.currentState().Terminal() {
			return e.finish()
		}
	}
}

func (e *Engine) finish() (Report, error) {
	report := e.Report()
	if report.State == StateAborted {
		return report, fmt.Errorf("trade aborted: %s", report.Reason)
	}
	return report, nil
}

func (e *Engine) enter(ctx context.Context) error {
	res, err := e.gw.Open(ctx, exec.OpenOrder{
		Symbol:     e.spec.Symbol,
		Direction:  e.spec.Direction,
		Quantity:   e.spec.Quantity,
		StopLoss:   e.spec.StopLoss,
		TakeProfit: e.spec.TakeProfit,
	})
	if err != nil {
		return err
	}
	if res.Filled < e.spec.Quantity {
		// Partial entry fill: the ledger tracks what actually filled.
		e.log.Warn("entry filled partially",
			zap.Float64("requested", e.spec.Quantity),
			zap.Float64("filled", res.Filled),
		)
		filledSpec := e.spec
		filledSpec.Quantity = res.Filled
		e.mu.Lock()
		e.book = ledger.New(filledSpec)
		e.mu.Unlock()
	}
	e.log.Info("position opened",
		zap.String("symbol", e.spec.Symbol),
		zap.String("direction", string(e.spec.Direction)),
		zap.Float64("quantity", res.Filled),
		zap.Float64("fill_price", res.FillPrice),
	)
	if e.cfg.Events.EntryFilled != nil {
		e.cfg.Events.EntryFilled(ctx, res.Filled, res.FillPrice)
	}
	e.setState(StateMonitoring)
	return nil
}

func (e *Engine) nextSample(ctx context.Context) (trade.Sample, error) {
	if e.cfg.FeedTimeout <= 0 {
		return e.feed.Next(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, e.cfg.FeedTimeout)
	defer cancel()
	sample, err := e.feed.Next(tctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return trade.Sample{}, ErrFeedStall
	}
	return sample, err
}

// step applies one sample to the current state. Gateway calls happen
// synchronously here; the loop does not pull the next sample until the
// pending order resolves.
func (e *Engine) step(ctx context.Context, s trade.Sample) {
	if reason, hit := e.protectiveHit(s.Price); hit {
		e.closeRemaining(ctx, s, reason)
		return
	}
	switch e.currentState() {
	case StateMonitoring:
		if e.levelIdx >= len(e.levels) {
			e.closeRemaining(ctx, s, "levels complete")
			return
		}
		lv := e.levels[e.levelIdx]
		if lv.Reached(s.Price, e.spec.Direction, e.cfg.Retest.ToleranceFor(lv.Target)) {
			e.handleLevelHit(ctx, lv, s)
		}
	case StateAwaitingRetest:
		e.mu.Lock()
		status := e.window.Observe(s)
		e.mu.Unlock()
		switch status {
		case retest.StatusConfirmed:
			e.metrics.RetestsConfirmed.Inc()
			e.handleReentry(ctx, s)
		case retest.StatusExpired:
			e.metrics.RetestsExpired.Inc()
			e.log.Info("retest window expired",
				zap.Float64("ratio", e.windowRatio),
				zap.Float64("target", e.window.Target()),
			)
			e.advanceLevel(ctx, s)
		}
	}
}

// protectiveHit checks stop-loss and take-profit against the sample.
// They apply in every non-terminal state that holds quantity: a stop is
// a stop even while a retest window is open.
func (e *Engine) protectiveHit(price float64) (string, bool) {
	if e.book.Exhausted() {
		return "", false
	}
	sign := e.spec.Direction.Sign()
	if e.spec.StopLoss > 0 && (e.spec.StopLoss-price)*sign >= 0 {
		return "stop loss hit", true
	}
	if e.spec.TakeProfit > 0 && (price-e.spec.TakeProfit)*sign >= 0 {
		return "take profit hit", true
	}
	return "", false
}

func (e *Engine) handleLevelHit(ctx context.Context, lv levels.Level, s trade.Sample) {
	e.setState(StateLevelHit)
	quantity := lv.Weight * e.book.Snapshot().OriginalQuantity
	if remaining := e.book.Remaining(); quantity > remaining {
		quantity = remaining
	}
	res, err := e.gw.Close(ctx, exec.CloseOrder{Symbol: e.spec.Symbol, Quantity: quantity})
	if err != nil {
		// The ledger was not touched; whatever really filled at the
		// venue is left for manual reconciliation.
		e.flattenAndTerminate(fmt.Sprintf("partial exit at %.3f failed: %v", lv.Ratio, err))
		return
	}
	price := res.FillPrice
	if price <= 0 {
		price = s.Price
	}
	filled := res.Filled
	if remaining := e.book.Remaining(); filled > remaining {
		filled = remaining
	}
	if err := e.recordExit(lv.Ratio, filled, price, s.Time); err != nil {
		e.flattenAndTerminate(fmt.Sprintf("ledger rejected exit: %v", err))
		return
	}
	e.metrics.PartialExits.Inc()
	e.log.Info("partial exit",
		zap.Float64("ratio", lv.Ratio),
		zap.Float64("target", lv.Target),
		zap.Float64("quantity", filled),
		zap.Float64("price", price),
		zap.Float64("remaining", e.book.Remaining()),
	)
	if e.cfg.Events.PartialExit != nil {
		e.cfg.Events.PartialExit(ctx, lv.Ratio, filled, price, e.book.Remaining())
	}
	if e.book.Exhausted() {
		e.close("position exhausted")
		return
	}
	e.openWindow(lv, s.Time)
}

func (e *Engine) openWindow(lv levels.Level, opened time.Time) {
	e.mu.Lock()
	e.window = retest.New(lv.Target, e.spec.Direction, opened, e.cfg.Retest)
	e.windowRatio = lv.Ratio
	e.state = StateAwaitingRetest
	e.mu.Unlock()
}

func (e *Engine) handleReentry(ctx context.Context, s trade.Sample) {
	quantity := e.book.LastExitQuantity()
	if e.cfg.ReentrySizer != nil {
		quantity = e.cfg.ReentrySizer(quantity)
	}
	if quantity <= 0 {
		e.log.Info("reentry skipped by sizing policy", zap.Float64("ratio", e.windowRatio))
		e.advanceLevel(ctx, s)
		return
	}
	res, err := e.gw.Reopen(ctx, exec.ReopenOrder{
		Symbol:    e.spec.Symbol,
		Direction: e.spec.Direction,
		Quantity:  quantity,
	})
	if err != nil {
		e.flattenAndTerminate(fmt.Sprintf("reentry at %.3f failed: %v", e.windowRatio, err))
		return
	}
	price := res.FillPrice
	if price <= 0 {
		price = s.Price
	}
	if err := e.recordReentry(e.windowRatio, res.Filled, price, s.Time); err != nil {
		e.flattenAndTerminate(fmt.Sprintf("ledger rejected reentry: %v", err))
		return
	}
	e.metrics.Reentries.Inc()
	e.setState(StateReentered)
	e.log.Info("reentered after retest",
		zap.Float64("ratio", e.windowRatio),
		zap.Float64("quantity", res.Filled),
		zap.Float64("price", price),
		zap.Float64("remaining", e.book.Remaining()),
	)
	if e.cfg.Events.Reentered != nil {
		e.cfg.Events.Reentered(ctx, e.windowRatio, res.Filled, price)
	}
	e.advanceLevel(ctx, s)
}

// advanceLevel marks the current level processed, discards its window,
// and either resumes monitoring or closes out when no levels remain.
func (e *Engine) advanceLevel(ctx context.Context, s trade.Sample) {
	e.mu.Lock()
	e.window = nil
	e.windowRatio = 0
	e.levelIdx++
	done := e.levelIdx >= len(e.levels)
	e.state = StateMonitoring
	e.mu.Unlock()
	if done {
		e.closeRemaining(ctx, s, "levels complete")
	}
}

// closeRemaining flattens whatever is left and finishes in CLOSED, or
// ABORTED when the final close fails.
func (e *Engine) closeRemaining(ctx context.Context, s trade.Sample, reason string) {
	remaining := e.book.Remaining()
	if remaining > 0 {
		res, err := e.gw.Close(ctx, exec.CloseOrder{Symbol: e.spec.Symbol, Quantity: remaining})
		if err != nil {
			e.abort(fmt.Sprintf("%s; final close failed: %v", reason, err), remaining)
			return
		}
		price := res.FillPrice
		if price <= 0 {
			price = s.Price
		}
		if err := e.recordExit(0, remaining, price, s.Time); err != nil {
			e.abort(fmt.Sprintf("%s; ledger rejected final close: %v", reason, err), remaining)
			return
		}
	}
	e.close(reason)
}

// terminateOnFeedError handles loop-ending feed conditions: external
// abort (context cancellation), end of stream, or a stalled feed.
func (e *Engine) terminateOnFeedError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		e.flattenAndTerminate("price feed closed")
	case errors.Is(err, ErrFeedStall):
		e.flattenAndTerminate("price feed stalled beyond timeout")
	case ctx.Err() != nil:
		e.flattenAndTerminate("abort requested")
	default:
		e.flattenAndTerminate(fmt.Sprintf("feed error: %v", err))
	}
}

// flattenAndTerminate attempts a last close on a detached context, then
// lands in ABORTED. A failed close leaves the residual quantity in the
// report for manual reconciliation.
func (e *Engine) flattenAndTerminate(reason string) {
	remaining := e.book.Remaining()
	if remaining <= 0 {
		e.abort(reason, 0)
		return
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), abortCloseTimeout)
	defer cancel()
	res, err := e.gw.Close(closeCtx, exec.CloseOrder{Symbol: e.spec.Symbol, Quantity: remaining})
	if err != nil {
		e.log.Error("abort close failed; position residual outstanding",
			zap.Float64("residual", remaining),
			zap.Error(err),
		)
		e.abort(fmt.Sprintf("%s; close failed, residual %.8f", reason, remaining), remaining)
		return
	}
	price := res.FillPrice
	if price <= 0 {
		price = e.snapshotPrice()
	}
	_ = e.recordExit(0, remaining, price, time.Now().UTC())
	e.abort(reason, 0)
}

func (e *Engine) close(reason string) {
	e.mu.Lock()
	e.state = StateClosed
	e.reason = reason
	e.window = nil
	e.completedAt = time.Now().UTC()
	e.mu.Unlock()
	e.metrics.TradesClosed.Inc()
	e.log.Info("trade closed",
		zap.String("reason", reason),
		zap.Float64("realized_pnl", e.book.RealizedPnL()),
	)
}

func (e *Engine) abort(reason string, residual float64) {
	e.mu.Lock()
	if e.state == StateAborted {
		e.mu.Unlock()
		return
	}
	e.state = StateAborted
	e.reason = reason
	e.residual = residual
	e.window = nil
	e.completedAt = time.Now().UTC()
	e.mu.Unlock()
	e.metrics.TradesAborted.Inc()
	e.log.Error("trade aborted",
		zap.String("reason", reason),
		zap.Float64("residual", residual),
	)
}

func (e *Engine) recordExit(ratio, quantity, price float64, ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.RecordExit(ratio, quantity, price, ts)
}

func (e *Engine) recordReentry(ratio, quantity, price float64, ts time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.RecordReentry(ratio, quantity, price, ts)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) observe(s trade.Sample) {
	e.mu.Lock()
	e.lastPrice = s.Price
	e.mu.Unlock()
}

func (e *Engine) snapshotPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPrice
}

func (e *Engine) terminationReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// Snapshot is safe to call from other goroutines (status polling).
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		State:     e.state,
		Symbol:    e.spec.Symbol,
		Direction: e.spec.Direction,
		Ledger:    e.book.Snapshot(),
		LastPrice: e.lastPrice,
		Reason:    e.reason,
	}
	if e.window != nil {
		snap.Window = &WindowSnapshot{
			Ratio:    e.windowRatio,
			Target:   e.window.Target(),
			Status:   e.window.Status(),
			Deadline: e.window.Deadline(),
		}
	}
	return snap
}

func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Report{
		Symbol:      e.spec.Symbol,
		Direction:   e.spec.Direction,
		State:       e.state,
		Reason:      e.reason,
		Ledger:      e.book.Snapshot(),
		Residual:    e.residual,
		CompletedAt: e.completedAt,
	}
}

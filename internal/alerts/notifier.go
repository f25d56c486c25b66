package alerts

import (
	"context"
	"fmt"

	"fib-retest-bot/internal/engine"

	"go.uber.org/zap"
)

// Sender delivers one alert message.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// Notifier formats trade lifecycle events into alerts. Delivery failures
// are logged, never propagated: alerting must not stall the trade loop.
type Notifier struct {
	sender Sender
	log    *zap.Logger
}

func NewNotifier(sender Sender, log *zap.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

func (n *Notifier) TradeOpened(ctx context.Context, symbol, direction string, quantity, price float64) {
	n.send(ctx, fmt.Sprintf("entry filled %s %s qty=%.6g px=%.6g", direction, symbol, quantity, price))
}

func (n *Notifier) PartialExit(ctx context.Context, symbol string, ratio, quantity, price, remaining float64) {
	n.send(ctx, fmt.Sprintf("partial exit %s level=%.3f qty=%.6g px=%.6g remaining=%.6g", symbol, ratio, quantity, price, remaining))
}

func (n *Notifier) Reentered(ctx context.Context, symbol string, ratio, quantity, price float64) {
	n.send(ctx, fmt.Sprintf("reentered %s level=%.3f qty=%.6g px=%.6g", symbol, ratio, quantity, price))
}

func (n *Notifier) TradeFinished(ctx context.Context, report engine.Report) {
	msg := fmt.Sprintf("%s %s %s: %s (pnl=%.6g remaining=%.6g exits=%d reentries=%d)",
		report.State,
		report.Direction,
		report.Symbol,
		report.Reason,
		report.Ledger.RealizedPnL,
		report.Ledger.RemainingQuantity,
		len(report.Ledger.Exits),
		len(report.Ledger.Reentries),
	)
	if report.Residual > 0 {
		msg += fmt.Sprintf(" RESIDUAL %.6g NEEDS MANUAL CLOSE", report.Residual)
	}
	n.send(ctx, msg)
}

func (n *Notifier) send(ctx context.Context, message string) {
	if n == nil || n.sender == nil {
		return
	}
	if err := n.sender.Send(ctx, message); err != nil {
		n.log.Warn("alert delivery failed", zap.String("message", message), zap.Error(err))
	}
}

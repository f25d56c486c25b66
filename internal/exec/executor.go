package exec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fib-retest-bot/internal/metrics"
	"fib-retest-bot/internal/state"
	"fib-retest-bot/internal/trade"

	"go.uber.org/zap"
)

// ErrUnfilled marks a gateway call that completed without transport
// error but left no filled quantity.
var ErrUnfilled = errors.New("order was not filled")

type OrderResult struct {
	OrderID   string  `json:"order_id"`
	Filled    float64 `json:"filled"`
	FillPrice float64 `json:"fill_price"`
}

type OpenOrder struct {
	Symbol        string
	Direction     trade.Direction
	Quantity      float64
	StopLoss      float64 // 0 = none
	TakeProfit    float64 // 0 = none
	ClientOrderID string
}

type CloseOrder struct {
	Symbol        string
	Quantity      float64
	ClientOrderID string
}

type ReopenOrder struct {
	Symbol        string
	Direction     trade.Direction
	Quantity      float64
	ClientOrderID string
}

// Gateway is the narrow surface the engine needs from a trading venue.
// Implementations fill synchronously or report ErrUnfilled.
type Gateway interface {
	Open(ctx context.Context, order OpenOrder) (OrderResult, error)
	Close(ctx context.Context, order CloseOrder) (OrderResult, error)
	Reopen(ctx context.Context, order ReopenOrder) (OrderResult, error)
}

// Executor wraps a Gateway with bounded retry, order-result journaling
// and metrics. Entry orders get the full retry budget; exits and
// reentries get a single retry, since repeating a partial close against
// a possibly-filled order is worse than aborting.
type Executor struct {
	gw            Gateway
	store         state.Store
	log           *zap.Logger
	metrics       *metrics.Metrics
	entryAttempts int
	backoff       time.Duration
}

func New(gw Gateway, store state.Store, log *zap.Logger, m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{
		gw:            gw,
		store:         store,
		log:           log,
		metrics:       m,
		entryAttempts: 5,
		backoff:       200 * time.Millisecond,
	}
}

// SetEntryRetry overrides the entry retry budget and initial backoff.
func (e *Executor) SetEntryRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		e.entryAttempts = attempts
	}
	if backoff > 0 {
		e.backoff = backoff
	}
}

func (e *Executor) Open(ctx context.Context, order OpenOrder) (OrderResult, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = clientOrderID("open", order.Symbol)
	}
	return e.place(ctx, order.ClientOrderID, e.entryAttempts, func() (OrderResult, error) {
		return e.gw.Open(ctx, order)
	})
}

func (e *Executor) Close(ctx context.Context, order CloseOrder) (OrderResult, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = clientOrderID("close", order.Symbol)
	}
	return e.place(ctx, order.ClientOrderID, 2, func() (OrderResult, error) {
		return e.gw.Close(ctx, order)
	})
}

func (e *Executor) Reopen(ctx context.Context, order ReopenOrder) (OrderResult, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = clientOrderID("reopen", order.Symbol)
	}
	return e.place(ctx, order.ClientOrderID, 2, func() (OrderResult, error) {
		return e.gw.Reopen(ctx, order)
	})
}

func (e *Executor) place(ctx context.Context, cloid string, attempts int, fn func() (OrderResult, error)) (OrderResult, error) {
	if res, ok := e.journaled(ctx, cloid); ok {
		return res, nil
	}
	res, err := e.retry(ctx, attempts, fn)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return res, err
	}
	e.metrics.OrdersPlaced.Inc()
	e.journal(ctx, cloid, res)
	return res, nil
}

// journaled replays a result already confirmed for this client order id,
// so a crash between fill and ledger update cannot double an order.
func (e *Executor) journaled(ctx context.Context, cloid string) (OrderResult, bool) {
	if e.store == nil || cloid == "" {
		return OrderResult{}, false
	}
	raw, ok, err := e.store.Get(ctx, journalKey(cloid))
	if err != nil || !ok {
		return OrderResult{}, false
	}
	var res OrderResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return OrderResult{}, false
	}
	return res, true
}

func (e *Executor) journal(ctx context.Context, cloid string, res OrderResult) {
	if e.store == nil || cloid == "" {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, journalKey(cloid), string(payload)); err != nil {
		e.log.Warn("failed to journal order result", zap.String("cloid", cloid), zap.Error(err))
	}
}

func (e *Executor) retry(ctx context.Context, attempts int, fn func() (OrderResult, error)) (OrderResult, error) {
	if attempts <= 0 {
		attempts = 1
	}
	backoff := e.backoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := fn()
		if err == nil && res.Filled <= 0 {
			err = ErrUnfilled
		}
		if err == nil {
			return res, nil
		}
		lastErr = err
		e.log.Warn("order attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return OrderResult{}, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return OrderResult{}, fmt.Errorf("order failed after %d attempts: %w", attempts, lastErr)
}

func journalKey(cloid string) string {
	return "order:" + cloid
}

func clientOrderID(kind, symbol string) string {
	return fmt.Sprintf("%s-%s-%d", kind, symbol, time.Now().UnixNano())
}

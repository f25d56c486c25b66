// Package sim provides an in-memory venue for dry runs: every order
// fills instantly and completely at the current reference price.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fib-retest-bot/internal/exec"

	"go.uber.org/zap"
)

// PriceRef returns the current price for a symbol.
type PriceRef func(symbol string) (float64, bool)

type Gateway struct {
	ref PriceRef
	log *zap.Logger
	seq atomic.Int64

	mu       sync.Mutex
	position float64 // signed: positive long, negative short
}

func New(ref PriceRef, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{ref: ref, log: log}
}

// Position is the signed net quantity currently held.
func (g *Gateway) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

func (g *Gateway) Open(ctx context.Context, order exec.OpenOrder) (exec.OrderResult, error) {
	return g.fill(ctx, order.Symbol, order.Direction.Sign(), order.Quantity)
}

func (g *Gateway) Close(ctx context.Context, order exec.CloseOrder) (exec.OrderResult, error) {
	g.mu.Lock()
	held := g.position
	g.mu.Unlock()
	if held == 0 {
		return exec.OrderResult{}, errors.New("no position to close")
	}
	sign := -1.0
	if held < 0 {
		sign = 1.0
	}
	return g.fill(ctx, order.Symbol, sign, order.Quantity)
}

func (g *Gateway) Reopen(ctx context.Context, order exec.ReopenOrder) (exec.OrderResult, error) {
	return g.fill(ctx, order.Symbol, order.Direction.Sign(), order.Quantity)
}

func (g *Gateway) fill(ctx context.Context, symbol string, sign, quantity float64) (exec.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return exec.OrderResult{}, err
	}
	if quantity <= 0 {
		return exec.OrderResult{}, fmt.Errorf("quantity %v is not positive", quantity)
	}
	price, ok := g.ref(symbol)
	if !ok || price <= 0 {
		return exec.OrderResult{}, fmt.Errorf("no reference price for %s", symbol)
	}
	g.mu.Lock()
	g.position += sign * quantity
	position := g.position
	g.mu.Unlock()
	id := fmt.Sprintf("sim-%d", g.seq.Add(1))
	g.log.Info("simulated fill",
		zap.String("order_id", id),
		zap.String("symbol", symbol),
		zap.Float64("quantity", sign*quantity),
		zap.Float64("price", price),
		zap.Float64("position", position),
	)
	return exec.OrderResult{OrderID: id, Filled: quantity, FillPrice: price}, nil
}

var _ exec.Gateway = (*Gateway)(nil)

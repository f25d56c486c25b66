package feed

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"fib-retest-bot/internal/trade"

	"go.uber.org/zap"
)

// WSFeed streams mid prices for one symbol from the venue's allMids
// channel. Samples are latest-wins: a slow consumer sees the newest
// price, never a backlog.
type WSFeed struct {
	sock   *socket
	symbol string
	log    *zap.Logger
	now    func() time.Time

	samples chan trade.Sample
	done    chan struct{}
	runErr  error

	mu   sync.RWMutex
	last trade.Sample
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	Symbol         string        `yaml:"symbol"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

func NewWS(cfg WSConfig, log *zap.Logger) *WSFeed {
	return &WSFeed{
		sock:    newSocket(cfg.URL, cfg.ReconnectDelay, cfg.PingInterval, log),
		symbol:  cfg.Symbol,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		samples: make(chan trade.Sample, 1),
		done:    make(chan struct{}),
	}
}

// Start connects, subscribes, and launches the read loop. The feed keeps
// reconnecting until ctx is cancelled.
func (f *WSFeed) Start(ctx context.Context) error {
	if err := f.sock.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "allMids"}}
	if err := f.sock.Subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		f.runErr = f.sock.Run(ctx, f.handleMessage)
		close(f.done)
	}()
	return nil
}

// Next blocks for the next sample. It returns io.EOF once the underlying
// socket loop has stopped for good.
func (f *WSFeed) Next(ctx context.Context) (trade.Sample, error) {
	select {
	case s := <-f.samples:
		return s, nil
	case <-f.done:
		if f.runErr != nil && f.runErr != context.Canceled {
			return trade.Sample{}, f.runErr
		}
		return trade.Sample{}, io.EOF
	case <-ctx.Done():
		return trade.Sample{}, ctx.Err()
	}
}

// Last is the most recent sample seen, for status reporting.
func (f *WSFeed) Last() (trade.Sample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, !f.last.Time.IsZero()
}

func (f *WSFeed) handleMessage(msg json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		f.log.Debug("ws decode error", zap.Error(err))
		return
	}
	price, ok := midFromPayload(payload, f.symbol)
	if !ok {
		return
	}
	f.publish(trade.Sample{Price: price, Time: f.now()})
}

func (f *WSFeed) publish(s trade.Sample) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
	for {
		select {
		case f.samples <- s:
			return
		default:
			// Drop the stale sample and retry with the new one.
			select {
			case <-f.samples:
			default:
			}
		}
	}
}

// midFromPayload digs the symbol's mid out of an allMids message. The ws
// stream nests mids under data; the /info endpoint returns a flat map.
func midFromPayload(payload map[string]any, symbol string) (float64, bool) {
	var mids map[string]any
	if data, ok := payload["data"].(map[string]any); ok {
		if raw, ok := data["mids"].(map[string]any); ok {
			mids = raw
		}
	}
	if mids == nil {
		if raw, ok := payload["mids"].(map[string]any); ok {
			mids = raw
		}
	}
	if mids == nil {
		if _, hasData := payload["data"]; !hasData {
			mids = payload
		}
	}
	if mids == nil {
		return 0, false
	}
	return floatFromAny(mids[symbol])
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

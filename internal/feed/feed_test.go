package feed

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"fib-retest-bot/internal/trade"

	"go.uber.org/zap"
)

func TestMidFromPayloadWSShape(t *testing.T) {
	raw := []byte(`{"channel":"allMids","data":{"mids":{"EURUSD":"1.0850","BTC":"65000.5"}}}`)
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	price, ok := midFromPayload(payload, "EURUSD")
	if !ok || price != 1.0850 {
		t.Fatalf("got %v/%v, want 1.0850/true", price, ok)
	}
	if _, ok := midFromPayload(payload, "XRP"); ok {
		t.Fatalf("unknown symbol must not resolve")
	}
}

func TestMidFromPayloadFlatShape(t *testing.T) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(`{"EURUSD":"1.0901"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	price, ok := midFromPayload(payload, "EURUSD")
	if !ok || price != 1.0901 {
		t.Fatalf("got %v/%v, want 1.0901/true", price, ok)
	}
}

func TestWSFeedLatestWins(t *testing.T) {
	f := NewWS(WSConfig{Symbol: "EURUSD"}, zap.NewNop())
	ts := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return ts }

	f.handleMessage([]byte(`{"data":{"mids":{"EURUSD":"1.0850"}}}`))
	f.handleMessage([]byte(`{"data":{"mids":{"EURUSD":"1.0851"}}}`))
	f.handleMessage([]byte(`{"data":{"mids":{"EURUSD":"1.0852"}}}`))

	s, err := f.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Price != 1.0852 {
		t.Fatalf("price = %v, want latest 1.0852", s.Price)
	}
	last, ok := f.Last()
	if !ok || last.Price != 1.0852 {
		t.Fatalf("last = %v/%v, want 1.0852/true", last.Price, ok)
	}
}

func TestWSFeedNextHonorsContext(t *testing.T) {
	f := NewWS(WSConfig{Symbol: "EURUSD"}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Next(ctx); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestWSFeedIgnoresMalformedMessages(t *testing.T) {
	f := NewWS(WSConfig{Symbol: "EURUSD"}, zap.NewNop())
	f.handleMessage([]byte(`not json`))
	f.handleMessage([]byte(`{"data":{"mids":{"EURUSD":"garbage"}}}`))
	if _, ok := f.Last(); ok {
		t.Fatalf("malformed input must not produce a sample")
	}
}

func TestSliceFeedReplaysThenEOF(t *testing.T) {
	samples := []trade.Sample{
		{Price: 1.0, Time: time.Unix(1, 0)},
		{Price: 2.0, Time: time.Unix(2, 0)},
	}
	f := NewSlice(samples)
	for i, want := range samples {
		got, err := f.Next(context.Background())
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("sample %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := f.Next(context.Background()); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

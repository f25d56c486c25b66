package state

import (
	"context"
	"sync"
	"testing"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestTradeSnapshotRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	snapshot := TradeSnapshot{
		State:             "AWAITING_RETEST",
		Symbol:            "EURUSD",
		Direction:         "long",
		RemainingQuantity: 0.7,
		RealizedPnL:       0.000354,
		ExitCount:         1,
		WindowStatus:      "REJECTED",
		WindowTarget:      1.08382,
		UpdatedAtMS:       12345,
	}
	if err := SaveTradeSnapshot(ctx, store, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	got, ok, err := LoadTradeSnapshot(ctx, store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be present")
	}
	if got != snapshot {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
}

func TestTradeSnapshotMissing(t *testing.T) {
	store := &memoryStore{}
	got, ok, err := LoadTradeSnapshot(context.Background(), store)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot, got %#v", got)
	}
}

func TestTradeSnapshotInvalid(t *testing.T) {
	store := &memoryStore{items: map[string]string{TradeSnapshotKey: "{"}}
	_, _, err := LoadTradeSnapshot(context.Background(), store)
	if err == nil {
		t.Fatalf("expected error for invalid snapshot JSON")
	}
}

func TestTradeSnapshotNilStore(t *testing.T) {
	if err := SaveTradeSnapshot(context.Background(), nil, TradeSnapshot{}); err != nil {
		t.Fatalf("nil store save should be a no-op, got %v", err)
	}
	_, ok, err := LoadTradeSnapshot(context.Background(), nil)
	if err != nil || ok {
		t.Fatalf("nil store load should report absent, got ok=%v err=%v", ok, err)
	}
}

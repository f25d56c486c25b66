package state

import (
	"context"
	"encoding/json"
	"strings"
)

const TradeSnapshotKey = "trade:last_snapshot"

// TradeSnapshot is the last observed engine state, persisted so an
// operator can inspect what the bot was doing across restarts.
type TradeSnapshot struct {
	State             string  `json:"state"`
	Symbol            string  `json:"symbol"`
	Direction         string  `json:"direction"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	RealizedPnL       float64 `json:"realized_pnl"`
	ExitCount         int     `json:"exit_count"`
	ReentryCount      int     `json:"reentry_count"`
	WindowStatus      string  `json:"window_status,omitempty"`
	WindowTarget      float64 `json:"window_target,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	UpdatedAtMS       int64   `json:"updated_at_ms"`
}

func LoadTradeSnapshot(ctx context.Context, store Store) (TradeSnapshot, bool, error) {
	if store == nil {
		return TradeSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, TradeSnapshotKey)
	if err != nil {
		return TradeSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return TradeSnapshot{}, false, nil
	}
	var snapshot TradeSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return TradeSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveTradeSnapshot(ctx context.Context, store Store, snapshot TradeSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, TradeSnapshotKey, string(payload))
}

package hyperliquid

import (
	"errors"
	"testing"
)

func filledResponse(totalSz, avgPx string, oid float64) map[string]any {
	return map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{
					map[string]any{
						"filled": map[string]any{
							"totalSz": totalSz,
							"avgPx":   avgPx,
							"oid":     oid,
						},
					},
				},
			},
		},
	}
}

func TestParseFillFilled(t *testing.T) {
	f, err := parseFill(filledResponse("0.3", "1.08382", 292577153770))
	if err != nil {
		t.Fatalf("parse fill: %v", err)
	}
	if f.Size != 0.3 || f.AvgPrice != 1.08382 || f.OrderID != "292577153770" {
		t.Fatalf("unexpected fill: %+v", f)
	}
}

func TestParseFillErrorStatus(t *testing.T) {
	resp := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{
					map[string]any{"error": "Insufficient margin"},
				},
			},
		},
	}
	if _, err := parseFill(resp); err == nil {
		t.Fatalf("expected error status to surface")
	}
}

func TestParseFillRestingIsNoFill(t *testing.T) {
	resp := map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{
					map[string]any{"resting": map[string]any{"oid": float64(1)}},
				},
			},
		},
	}
	if _, err := parseFill(resp); !errors.Is(err, errNoFill) {
		t.Fatalf("expected errNoFill, got %v", err)
	}
}

func TestParseFillRejectedTopLevel(t *testing.T) {
	resp := map[string]any{"status": "err", "response": "Invalid signature"}
	if _, err := parseFill(resp); err == nil {
		t.Fatalf("expected rejection error")
	}
}

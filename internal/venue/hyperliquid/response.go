package hyperliquid

import (
	"errors"
	"fmt"
	"strconv"
)

// fill is what a successful IOC order reports back: the filled size, the
// average price, and the venue order id.
type fill struct {
	OrderID  string
	Size     float64
	AvgPrice float64
}

var errNoFill = errors.New("order response carried no fill")

// parseFill extracts the fill from an /exchange order response. The
// statuses array carries one entry per order: "filled", "resting" (which
// an IOC order never leaves behind), or "error".
func parseFill(resp map[string]any) (fill, error) {
	if resp == nil {
		return fill{}, errors.New("empty response")
	}
	if status := stringFromAny(resp["status"]); status != "" && status != "ok" {
		return fill{}, fmt.Errorf("order rejected: %v", resp["response"])
	}
	statuses := statusesFromResponse(resp)
	if len(statuses) == 0 {
		return fill{}, errNoFill
	}
	entry, ok := statuses[0].(map[string]any)
	if !ok {
		return fill{}, errNoFill
	}
	if msg := stringFromAny(entry["error"]); msg != "" {
		return fill{}, fmt.Errorf("order rejected: %s", msg)
	}
	filled, ok := entry["filled"].(map[string]any)
	if !ok {
		// An IOC order that crossed nothing is cancelled, not resting.
		return fill{}, errNoFill
	}
	size, err := floatFromWire(filled["totalSz"])
	if err != nil {
		return fill{}, fmt.Errorf("fill size: %w", err)
	}
	price, err := floatFromWire(filled["avgPx"])
	if err != nil {
		return fill{}, fmt.Errorf("fill price: %w", err)
	}
	return fill{
		OrderID:  stringFromAny(filled["oid"]),
		Size:     size,
		AvgPrice: price,
	}, nil
}

func statusesFromResponse(resp map[string]any) []any {
	response, ok := resp["response"].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		return nil
	}
	statuses, _ := data["statuses"].([]any)
	return statuses
}

func floatFromWire(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, fmt.Errorf("unexpected wire number %T", v)
	}
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

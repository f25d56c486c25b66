package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.PartialExits.Inc()
	prom.Metrics.Reentries.Inc()
	prom.Metrics.RetestsConfirmed.Inc()
	prom.Metrics.RetestsExpired.Inc()
	prom.Metrics.TradesClosed.Inc()
	prom.Metrics.TradesAborted.Inc()

	counters := []Counter{
		prom.Metrics.OrdersPlaced,
		prom.Metrics.OrdersFailed,
		prom.Metrics.PartialExits,
		prom.Metrics.Reentries,
		prom.Metrics.RetestsConfirmed,
		prom.Metrics.RetestsExpired,
		prom.Metrics.TradesClosed,
		prom.Metrics.TradesAborted,
	}
	for i, c := range counters {
		pc, ok := c.(promCounter)
		if !ok {
			t.Fatalf("counter %d is not prometheus-backed", i)
		}
		if got := testutil.ToFloat64(pc.counter); got != 1 {
			t.Fatalf("counter %d = %v, want 1", i, got)
		}
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	// Must not panic.
	m.OrdersPlaced.Inc()
	m.TradesAborted.Inc()
}

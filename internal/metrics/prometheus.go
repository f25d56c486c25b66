package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "fib_retest_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		OrdersPlaced:     promCounter{counter("orders_placed_total", "Total number of orders placed.")},
		OrdersFailed:     promCounter{counter("orders_failed_total", "Total number of order placement failures.")},
		PartialExits:     promCounter{counter("partial_exits_total", "Total number of partial exits executed at retracement levels.")},
		Reentries:        promCounter{counter("reentries_total", "Total number of reentry orders after confirmed retests.")},
		RetestsConfirmed: promCounter{counter("retests_confirmed_total", "Total number of retest windows that confirmed.")},
		RetestsExpired:   promCounter{counter("retests_expired_total", "Total number of retest windows that expired unfulfilled.")},
		TradesClosed:     promCounter{counter("trades_closed_total", "Total number of trades that reached the closed state.")},
		TradesAborted:    promCounter{counter("trades_aborted_total", "Total number of trades that aborted.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced     Counter
	OrdersFailed     Counter
	PartialExits     Counter
	Reentries        Counter
	RetestsConfirmed Counter
	RetestsExpired   Counter
	TradesClosed     Counter
	TradesAborted    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:     n,
		OrdersFailed:     n,
		PartialExits:     n,
		Reentries:        n,
		RetestsConfirmed: n,
		RetestsExpired:   n,
		TradesClosed:     n,
		TradesAborted:    n,
	}
}

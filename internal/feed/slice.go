package feed

import (
	"context"
	"io"

	"fib-retest-bot/internal/trade"
)

// SliceFeed replays a fixed sample sequence, then reports io.EOF. Used
// for dry runs and for replaying recorded trades.
type SliceFeed struct {
	samples []trade.Sample
	idx     int
}

func NewSlice(samples []trade.Sample) *SliceFeed {
	return &SliceFeed{samples: samples}
}

func (f *SliceFeed) Next(ctx context.Context) (trade.Sample, error) {
	if err := ctx.Err(); err != nil {
		return trade.Sample{}, err
	}
	if f.idx >= len(f.samples) {
		return trade.Sample{}, io.EOF
	}
	s := f.samples[f.idx]
	f.idx++
	return s, nil
}

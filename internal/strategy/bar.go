// Package strategy holds example strategies over core.EventStrategy /
// core.TickStrategy / core.LifecycleStrategy, demonstrating how a caller
// drives the engine's broker capability.
package strategy

// Bar is one closed timeframe candle built from a price stream.
type Bar struct {
	StartMs                int64
	Open, High, Low, Close float64
}

// BarBuilder folds a stream of (t_ms, price) ticks into fixed-width bars,
// closing a bar the moment the first tick of the next bar arrives.
type BarBuilder struct {
	TfMs         int64
	FillMissing  bool
	haveBar      bool
	barID        int64
	bar          Bar
}

// NewBarBuilder constructs a builder for a tf_ms-wide timeframe.
func NewBarBuilder(tfMs int64, fillMissing bool) *BarBuilder {
	return &BarBuilder{TfMs: tfMs, FillMissing: fillMissing}
}

// OnPrice folds one tick in, returning any bars that closed as a result.
func (b *BarBuilder) OnPrice(tMs int64, price float64) []Bar {
	if b.TfMs <= 0 {
		panic("strategy: BarBuilder.TfMs must be > 0")
	}
	bid := tMs / b.TfMs

	if !b.haveBar {
		b.haveBar = true
		b.barID = bid
		start := bid * b.TfMs
		b.bar = Bar{StartMs: start, Open: price, High: price, Low: price, Close: price}
		return nil
	}

	if bid == b.barID {
		if price > b.bar.High {
			b.bar.High = price
		}
		if price < b.bar.Low {
			b.bar.Low = price
		}
		b.bar.Close = price
		return nil
	}

	closed := []Bar{b.bar}

	if b.FillMissing && bid > b.barID+1 {
		lastClose := b.bar.Close
		for mid := b.barID + 1; mid < bid; mid++ {
			start := mid * b.TfMs
			closed = append(closed, Bar{StartMs: start, Open: lastClose, High: lastClose, Low: lastClose, Close: lastClose})
		}
	}

	b.barID = bid
	start := bid * b.TfMs
	b.bar = Bar{StartMs: start, Open: price, High: price, Low: price, Close: price}
	return closed
}

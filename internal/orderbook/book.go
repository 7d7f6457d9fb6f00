// Package orderbook implements the core's in-memory L2 order book: a pair
// of price→quantity ladders per symbol, kept in sync by sparse depth
// deltas, with derived best/mid/impact-VWAP queries.
package orderbook

import (
	"sort"

	"backtestengine/internal/core"
)

// Book is one symbol's L2 order book: two price→quantity mappings, bids
// keyed by price with best = highest, asks keyed by price with best =
// lowest. It has no internal locking — the engine owns exclusive access
// to it.
type Book struct {
	Symbol string
	Bids   map[float64]float64
	Asks   map[float64]float64

	LastFinalUpdateID int64
	LastUpdateTimeMs  int64
}

// New returns an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		Bids:   make(map[float64]float64),
		Asks:   make(map[float64]float64),
	}
}

// ApplyDepthUpdate applies a sparse delta: qty>0 sets the level, qty==0
// removes it. Order of application within the update does not affect the
// resulting state.
func (b *Book) ApplyDepthUpdate(d core.DepthUpdate) {
	applyLevels(b.Bids, d.BidUpdates)
	applyLevels(b.Asks, d.AskUpdates)
	b.LastFinalUpdateID = d.FinalUpdateID
	b.LastUpdateTimeMs = d.EventTimeMs
}

func applyLevels(side map[float64]float64, updates []core.PriceLevel) {
	for _, lvl := range updates {
		if lvl.Qty > 0 {
			side[lvl.Price] = lvl.Qty
		} else {
			delete(side, lvl.Price)
		}
	}
}

// BestBid returns the highest bid price and whether any bid exists.
func (b *Book) BestBid() (price float64, ok bool) {
	best, found := extreme(b.Bids, true)
	return best, found
}

// BestAsk returns the lowest ask price and whether any ask exists.
func (b *Book) BestAsk() (price float64, ok bool) {
	best, found := extreme(b.Asks, false)
	return best, found
}

// Mid returns (best_bid+best_ask)/2 when both sides exist.
func (b *Book) Mid() (price float64, ok bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Crossed reports whether best_bid >= best_ask. The book detects this but
// never auto-corrects it.
func (b *Book) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	return okBid && okAsk && bid >= ask
}

func extreme(side map[float64]float64, wantMax bool) (float64, bool) {
	first := true
	var best float64
	for price := range side {
		if first || (wantMax && price > best) || (!wantMax && price < best) {
			best = price
			first = false
		}
	}
	return best, !first
}

// ImpactVWAP walks the opposite side of side (a buy walks asks ascending,
// a sell walks bids descending), accumulating notional until it reaches
// targetNotional, maxLevels is exhausted, or the book runs out. If
// maxLevels yields insufficient depth it retries against the full book
// before reporting undefined. epsNotional absorbs floating-point residue
// at the target boundary.
func (b *Book) ImpactVWAP(side core.Side, targetNotional float64, maxLevels int, epsNotional float64) (vwap, filledNotional float64, ok bool) {
	vwap, filledNotional, ok = b.impactVWAP(side, targetNotional, maxLevels, epsNotional)
	if ok || maxLevels <= 0 {
		return vwap, filledNotional, ok
	}
	return b.impactVWAP(side, targetNotional, 0, epsNotional)
}

// impactVWAP performs one walk; maxLevels<=0 means unlimited.
func (b *Book) impactVWAP(side core.Side, targetNotional float64, maxLevels int, epsNotional float64) (float64, float64, bool) {
	levels := b.walkLevels(side)
	var accNotional, accQty float64
	for i, lvl := range levels {
		if maxLevels > 0 && i >= maxLevels {
			break
		}
		accNotional += lvl.Price * lvl.Qty
		accQty += lvl.Qty
		if accNotional+epsNotional >= targetNotional {
			vwap := accNotional / accQty
			return vwap, accNotional, true
		}
	}
	return 0, 0, false
}

// walkLevels returns the opposite-side levels in walk order: a buy walks
// asks ascending, a sell walks bids descending.
func (b *Book) walkLevels(side core.Side) []core.PriceLevel {
	var source map[float64]float64
	var ascending bool
	if side == core.Buy {
		source = b.Asks
		ascending = true
	} else {
		source = b.Bids
		ascending = false
	}

	levels := make([]core.PriceLevel, 0, len(source))
	for price, qty := range source {
		levels = append(levels, core.PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if ascending {
			return levels[i].Price < levels[j].Price
		}
		return levels[i].Price > levels[j].Price
	})
	return levels
}

// ApplyLevel mutates a single price level directly, used by the broker's
// taker self-impact walk to deplete the book as it consumes it. qty<=0
// removes the level.
func (b *Book) ApplyLevel(side core.Side, price, qty float64) {
	var target map[float64]float64
	if side == core.Buy {
		target = b.Asks
	} else {
		target = b.Bids
	}
	if qty <= 0 {
		delete(target, price)
	} else {
		target[price] = qty
	}
}

// QtyAt returns the resting quantity at price on the given side.
func (b *Book) QtyAt(side core.Side, price float64) float64 {
	if side == core.Buy {
		return b.Bids[price]
	}
	return b.Asks[price]
}

// Reset clears both ladders in place, used by the book guard's
// reset-on-trip path to discard a book judged unhealthy.
func (b *Book) Reset() {
	b.Bids = make(map[float64]float64)
	b.Asks = make(map[float64]float64)
}

// Clone returns a deep-enough copy of the book (independent price maps)
// for dry-run simulation, e.g. the broker's fill-or-kill pre-check.
func (b *Book) Clone() *Book {
	clone := New(b.Symbol)
	for p, q := range b.Bids {
		clone.Bids[p] = q
	}
	for p, q := range b.Asks {
		clone.Asks[p] = q
	}
	clone.LastFinalUpdateID = b.LastFinalUpdateID
	clone.LastUpdateTimeMs = b.LastUpdateTimeMs
	return clone
}

var _ core.BookView = (*Book)(nil)

// Package execution implements the broker's two fill models: taker
// consumption of the L2 book with self-impact, and the maker queue-ahead
// model driven by the trade tape.
package execution

import (
	"math"

	"backtestengine/internal/core"
	"backtestengine/internal/orderbook"
)

// ConsumeTakerFill walks the opposite side of side in book, consuming up
// to quantity and mutating the book in place to reflect the depth taken
// (self-impact). When hasLimit is set, limitPrice bounds how far the walk
// may cross (IOC-like); with hasLimit false the walk is unbounded (market
// order) and limitPrice is ignored.
// Returns NaN, 0 if nothing could be filled.
func ConsumeTakerFill(book *orderbook.Book, side core.Side, quantity, limitPrice float64, hasLimit bool) (avgPrice, filledQty float64) {
	remaining := quantity
	var cost, filled float64

	for remaining > 0 {
		price, ok := bestOpposite(book, side)
		if !ok {
			break
		}
		if hasLimit && crosses(side, price, limitPrice) {
			break
		}

		levelQty := book.QtyAt(oppositeSide(side), price)
		if levelQty <= 0 {
			break
		}

		take := levelQty
		if take > remaining {
			take = remaining
		}
		filled += take
		cost += take * price
		remaining -= take

		book.ApplyLevel(side, price, levelQty-take)
	}

	if filled <= 0 {
		return math.NaN(), 0
	}
	return cost / filled, filled
}

// bestOpposite returns the best price on the side a taker order of side
// would consume: asks for a buy, bids for a sell.
func bestOpposite(book *orderbook.Book, side core.Side) (float64, bool) {
	if side == core.Buy {
		return book.BestAsk()
	}
	return book.BestBid()
}

// oppositeSide returns the book side a taker order of side consumes:
// asks for a buy, bids for a sell. QtyAt is keyed by book side, not by
// the aggressor's side, so callers walking the consumed ladder must
// flip it here.
func oppositeSide(side core.Side) core.Side {
	if side == core.Buy {
		return core.Sell
	}
	return core.Buy
}

func crosses(side core.Side, price, limitPrice float64) bool {
	if side == core.Buy {
		return price > limitPrice
	}
	return price < limitPrice
}

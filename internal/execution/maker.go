package execution

import (
	"backtestengine/internal/core"
)

// MakerQueueOrder tracks one resting limit order's estimated position in
// the price-time queue ahead of it, approximated from the visible book at
// submission time and aged forward only by the trade tape.
//
// queue_ahead_qty may be refreshed from a DepthUpdate only on the first
// observation after submission — never again afterward, which keeps the
// estimate conservative (an order can never become "more queued" as
// liquidity is added behind it, and depth updates after the first are
// not allowed to help it either).
type MakerQueueOrder struct {
	OrderID    string
	Symbol     string
	Side       core.Side // Buy rests on the bid; Sell rests on the ask.
	Price      float64
	Quantity   float64
	ReduceOnly bool

	QueueAheadQty      float64
	FilledQty          float64
	TradeParticipation float64 // (0, 1]; conservative if < 1.
	PrioritySeq        int64   // Lower is older / higher priority.

	refreshed bool // Whether the one allowed post-submit refresh has occurred.
}

// RemainingQty returns the order's unfilled quantity.
func (m *MakerQueueOrder) RemainingQty() float64 {
	rem := m.Quantity - m.FilledQty
	if rem < 0 {
		return 0
	}
	return rem
}

// IsFilled reports whether the order has no remaining quantity.
func (m *MakerQueueOrder) IsFilled() bool { return m.RemainingQty() <= 0 }

// RefreshFromBook applies the single allowed post-submit queue-ahead
// refresh from the visible quantity resting at the order's price. A
// no-op after the first call: only the first post-submit observation
// refreshes the queue-ahead estimate.
func (m *MakerQueueOrder) RefreshFromBook(visibleQty float64) {
	if m.refreshed {
		return
	}
	m.refreshed = true
	if visibleQty < m.QueueAheadQty {
		m.QueueAheadQty = visibleQty
	}
}

// matchesTrade reports whether trade ages this order: the price must
// match the resting level exactly, and the aggressor must be on the
// opposite side (a buy limit ages on downticks — a sell aggressor hitting
// the bid; a sell limit ages on upticks — a buy aggressor lifting the
// ask).
func (m *MakerQueueOrder) matchesTrade(trade core.Trade) bool {
	if trade.Symbol != m.Symbol || m.IsFilled() {
		return false
	}
	if trade.Price != m.Price {
		return false
	}
	if m.Side == core.Buy {
		return trade.IsBuyerMaker // Seller aggressor hits resting bids.
	}
	return !trade.IsBuyerMaker // Buyer aggressor lifts resting asks.
}

// OnTrade consumes trade's participation-weighted quantity against this
// order's queue-ahead, then against its own remaining quantity, returning
// the quantity (if any) filled by this trade.
func (m *MakerQueueOrder) OnTrade(trade core.Trade) float64 {
	fill, _ := m.OnTradeBudgeted(trade, 0, false)
	return fill
}

// OnTradeBudgeted is OnTrade with an optional cap on how much of the trade
// this order may consume — used when several resting orders share the
// same price level and must split one trade's quantity among themselves
// in priority order. Returns the quantity filled and the quantity (queue
// + fill) consumed from the shared budget.
func (m *MakerQueueOrder) OnTradeBudgeted(trade core.Trade, maxTradeQty float64, hasMax bool) (fill, consumed float64) {
	if !m.matchesTrade(trade) {
		return 0, 0
	}

	participation := m.TradeParticipation
	if participation <= 0 {
		participation = 1
	}
	v := trade.Quantity * participation
	if hasMax && v > maxTradeQty {
		v = maxTradeQty
	}
	if v <= 0 {
		return 0, 0
	}

	queueBefore := m.QueueAheadQty
	queueConsumed := queueBefore
	if v < queueConsumed {
		queueConsumed = v
	}

	if queueBefore >= v {
		m.QueueAheadQty -= v
		return 0, v
	}

	remainingAfterQueue := v - queueBefore
	m.QueueAheadQty = 0

	fill = m.RemainingQty()
	if fill > remainingAfterQueue {
		fill = remainingAfterQueue
	}
	m.FilledQty += fill
	return fill, queueConsumed + fill
}

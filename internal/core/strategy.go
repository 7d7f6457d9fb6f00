package core

// Context is the capability record passed to a strategy on every
// callback: the current clock, read-only book views, latched snapshot
// maps, and a trading-window-proxied broker.
type Context struct {
	NowMs int64

	// Books is a read-only view of each symbol's current L2 book.
	Books map[string]BookView

	// LastTicker, LastOpenInterest, LastLiquidation hold the most recent
	// observation per symbol; Ticker/OI/Liq events only ever update these.
	LastTicker      map[string]Ticker
	LastOpenInterest map[string]OpenInterest
	LastLiquidation  map[string]Liquidation

	// Broker is the trading-window proxy the engine wraps around the
	// simulated broker.
	Broker Broker

	// Portfolio is read-only from the strategy's perspective; it is
	// mutated only by the broker's own fill/funding application.
	Portfolio *Portfolio
}

// BookView is the read-only subset of an L2 book a strategy may query.
type BookView interface {
	BestBid() (price float64, ok bool)
	BestAsk() (price float64, ok bool)
	Mid() (price float64, ok bool)
	ImpactVWAP(side Side, targetNotional float64, maxLevels int, epsNotional float64) (vwap, filledNotional float64, ok bool)
}

// Broker is the capability set a strategy drives orders through. The
// engine always hands strategies a trading-window proxy implementing
// this interface, never the raw simulated broker.
type Broker interface {
	Submit(order Order, nowMs int64) *Rejection
	Cancel(orderID string, nowMs int64)
	CancelSymbolOrders(symbol string, nowMs int64)
	HasOpenOrders(symbol string) bool
	HasPendingOrders(symbol string) bool
	Fills() []Fill
}

// EventStrategy optionally receives every merged event as it is applied.
type EventStrategy interface {
	OnEvent(event Event, ctx *Context)
}

// TickStrategy optionally receives fixed-grid tick callbacks when the
// engine's tick_interval_ms is non-zero.
type TickStrategy interface {
	OnTick(tickMs int64, ctx *Context)
}

// LifecycleStrategy optionally receives start/end hooks bracketing the
// run, supplemental to the on_event/on_tick pair.
type LifecycleStrategy interface {
	OnStart(ctx *Context)
	OnEnd(ctx *Context)
}

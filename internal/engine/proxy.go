package engine

import (
	"backtestengine/internal/core"
	"backtestengine/internal/orderbook"
)

// innerBroker is the shape both *broker.SimBroker and
// *guard.BookGuardedBroker satisfy: the book-aware submit contract the
// trading-window proxy delegates to.
type innerBroker interface {
	Submit(order core.Order, book *orderbook.Book, nowMs int64) *core.Rejection
	OnTime(nowMs int64)
	Cancel(orderID string, nowMs int64)
	CancelSymbolOrders(symbol string, nowMs int64)
	OnTrade(trade core.Trade, nowMs int64)
	OnDepthUpdate(d core.DepthUpdate, book *orderbook.Book)
	HasOpenOrders(symbol string) bool
	HasPendingOrders(symbol string) bool
	Fills() []core.Fill
}

// tradingWindowProxy is the capability the engine hands to strategies: it
// implements core.Broker, translating submit calls outside the
// configured trading window into rejections per cfg.TradingWindowMode.
type tradingWindowProxy struct {
	inner     innerBroker
	books     map[string]*orderbook.Book
	portfolio *core.Portfolio
	cfg       Config
	nowMs     *int64
}

func newTradingWindowProxy(inner innerBroker, books map[string]*orderbook.Book, portfolio *core.Portfolio, cfg Config, nowMs *int64) *tradingWindowProxy {
	return &tradingWindowProxy{inner: inner, books: books, portfolio: portfolio, cfg: cfg, nowMs: nowMs}
}

func (p *tradingWindowProxy) inWindow() bool {
	if !p.cfg.HasTradingWindow {
		return true
	}
	now := *p.nowMs
	return now >= p.cfg.TradingStartMs && now < p.cfg.TradingEndMs
}

// reduces reports whether order, if filled, would not increase the
// absolute magnitude of its symbol's current position — the same
// reducing-order test the broker uses for reduce_only, reused here for
// the entry_only trading-window qualifier.
func (p *tradingWindowProxy) reduces(order core.Order) bool {
	var netQty float64
	if pos, ok := p.portfolio.Positions[order.Symbol]; ok {
		netQty = pos.NetQty
	}
	signed := order.Quantity
	if order.Side == core.Sell {
		signed = -signed
	}
	projected := netQty + signed
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(projected) <= abs(netQty)+1e-12
}

func (p *tradingWindowProxy) Submit(order core.Order, nowMs int64) *core.Rejection {
	if p.inWindow() {
		return p.submitInner(order, nowMs)
	}

	switch p.cfg.TradingWindowMode {
	case BlockAll:
		return &core.Rejection{OrderID: order.ID, Kind: "invalid_order", Reason: "outside trading window"}
	case EntryOnly:
		if p.cfg.AllowReducingOutsideTradingWindow && p.reduces(order) {
			return p.submitInner(order, nowMs)
		}
		return &core.Rejection{OrderID: order.ID, Kind: "invalid_order", Reason: "entry outside trading window"}
	default:
		return p.submitInner(order, nowMs)
	}
}

func (p *tradingWindowProxy) submitInner(order core.Order, nowMs int64) *core.Rejection {
	book, ok := p.books[order.Symbol]
	if !ok {
		return &core.Rejection{OrderID: order.ID, Kind: "unknown_symbol", Reason: "no book for symbol " + order.Symbol}
	}
	return p.inner.Submit(order, book, nowMs)
}

func (p *tradingWindowProxy) Cancel(orderID string, nowMs int64) { p.inner.Cancel(orderID, nowMs) }

func (p *tradingWindowProxy) CancelSymbolOrders(symbol string, nowMs int64) {
	p.inner.CancelSymbolOrders(symbol, nowMs)
}

func (p *tradingWindowProxy) HasOpenOrders(symbol string) bool { return p.inner.HasOpenOrders(symbol) }

func (p *tradingWindowProxy) HasPendingOrders(symbol string) bool {
	return p.inner.HasPendingOrders(symbol)
}

func (p *tradingWindowProxy) Fills() []core.Fill { return p.inner.Fills() }

var _ core.Broker = (*tradingWindowProxy)(nil)

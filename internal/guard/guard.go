package guard

import (
	"backtestengine/internal/broker"
	"backtestengine/internal/core"
	"backtestengine/internal/errs"
	"backtestengine/internal/orderbook"
)

// Stats counts the guard's trip and block activity for diagnostics.
type Stats struct {
	Resets              int64
	MismatchTrips       int64
	CrossTrips          int64
	MissingSideTrips    int64
	SpreadTrips         int64
	StaleTrips          int64
	BlockedSubmits      int64
	BlockedSubmitReason map[string]int64
}

type symbolState struct {
	blockedUntilMs   int64
	warmupRemaining  int64
	lastFinalUpdateID int64
	haveLastFinal    bool
	lastDepthEventMs int64
	haveLastDepth    bool
}

// BookGuardedBroker wraps a *broker.SimBroker, observing each depth
// update and gating submit on a set of runtime sanity trip conditions.
// When Symbol is non-empty, checks apply only to that symbol.
type BookGuardedBroker struct {
	Inner  *broker.SimBroker
	Symbol string // Empty means all symbols.
	Cfg    Config
	Stats  Stats

	states map[string]*symbolState
}

// New returns a guarded broker wrapping inner.
func New(inner *broker.SimBroker, symbol string, cfg Config) *BookGuardedBroker {
	return &BookGuardedBroker{
		Inner:  inner,
		Symbol: symbol,
		Cfg:    cfg,
		Stats:  Stats{BlockedSubmitReason: make(map[string]int64)},
		states: make(map[string]*symbolState),
	}
}

func (g *BookGuardedBroker) symbolApplies(symbol string) bool {
	return g.Symbol == "" || g.Symbol == symbol
}

func (g *BookGuardedBroker) state(symbol string) *symbolState {
	st, ok := g.states[symbol]
	if !ok {
		st = &symbolState{}
		g.states[symbol] = st
	}
	return st
}

// trip runs the shared trip action: start the cooldown timer, arm
// warmup, always invalidate pending submits for the symbol, and reset
// the book plus drop active makers when the reason's reset flag is set.
func (g *BookGuardedBroker) trip(book *orderbook.Book, symbol string, nowMs int64, reason string) {
	st := g.state(symbol)

	if g.Cfg.CooldownMs > 0 {
		until := nowMs + g.Cfg.CooldownMs
		if until > st.blockedUntilMs {
			st.blockedUntilMs = until
		}
	}
	if g.Cfg.WarmupDepthUpdates > 0 && g.Cfg.WarmupDepthUpdates > st.warmupRemaining {
		st.warmupRemaining = g.Cfg.WarmupDepthUpdates
	}

	g.Inner.InvalidatePendingSubmits(symbol)

	reset := false
	switch reason {
	case "mismatch":
		reset = g.Cfg.ResetOnMismatch
	case "crossed":
		reset = g.Cfg.ResetOnCrossed
	case "missing_side":
		reset = g.Cfg.ResetOnMissingSide
	case "spread":
		reset = g.Cfg.ResetOnSpread
	case "stale":
		reset = g.Cfg.ResetOnStale
	}
	if reset {
		book.Reset()
		g.Inner.RemoveMakersForSymbol(symbol)
		g.Stats.Resets++
	}
}

// OnDepthUpdate observes update (after it has already been applied to
// book), checking sequence continuity, the crossed-book condition and
// the spread ceiling. Must be called by the engine for every depth
// update when the guard is enabled, whether or not Symbol matches — it
// no-ops otherwise. Staleness is not evaluated here: a depth update is
// itself the freshness signal, so staleness can only ever be observed
// at submit time, once too much time has passed since the last one.
func (g *BookGuardedBroker) OnDepthUpdate(update core.DepthUpdate, book *orderbook.Book) {
	if g.Cfg.Enabled && g.symbolApplies(update.Symbol) {
		st := g.state(update.Symbol)
		st.lastDepthEventMs = update.EventTimeMs
		st.haveLastDepth = true

		if st.warmupRemaining > 0 {
			st.warmupRemaining--
		}

		if st.haveLastFinal && update.PrevFinalUpdateID != st.lastFinalUpdateID {
			g.Stats.MismatchTrips++
			g.trip(book, update.Symbol, update.EventTimeMs, "mismatch")
		}
		st.lastFinalUpdateID = update.FinalUpdateID
		st.haveLastFinal = true
	}

	g.Inner.OnDepthUpdate(update, book)

	if g.Cfg.Enabled && g.symbolApplies(update.Symbol) {
		if book.Crossed() {
			g.Stats.CrossTrips++
			g.trip(book, update.Symbol, update.EventTimeMs, "crossed")
		} else if g.spreadExceeded(book) {
			g.Stats.SpreadTrips++
			g.trip(book, update.Symbol, update.EventTimeMs, "spread")
		}
	}
}

// spreadExceeded reports whether book's current best bid/ask spread
// exceeds the configured absolute or bps ceiling. Both sides must be
// present; a one-sided book is reported by the missing_side check
// instead.
func (g *BookGuardedBroker) spreadExceeded(book *orderbook.Book) bool {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return false
	}

	spread := ask - bid
	if g.Cfg.HasMaxSpread && spread > g.Cfg.MaxSpread {
		return true
	}
	if g.Cfg.HasMaxSpreadBps {
		mid := (ask + bid) / 2
		if mid > 0 && (spread/mid)*10000 > g.Cfg.MaxSpreadBps {
			return true
		}
	}
	return false
}

// Submit gates order.Submit through the trip conditions evaluated at
// submit time: cooldown, warmup, staleness, missing side, crossed,
// spread ceiling (absolute then bps).
func (g *BookGuardedBroker) Submit(order core.Order, book *orderbook.Book, nowMs int64) *core.Rejection {
	if !g.Cfg.Enabled || !g.symbolApplies(order.Symbol) {
		return g.Inner.Submit(order, book, nowMs)
	}

	st := g.state(order.Symbol)

	if nowMs < st.blockedUntilMs {
		g.block("cooldown")
		return blockedRejection(order.ID, "cooldown")
	}
	if st.warmupRemaining > 0 {
		g.block("warmup")
		return blockedRejection(order.ID, "warmup")
	}
	if g.Cfg.MaxStalenessMs > 0 {
		if !st.haveLastDepth || nowMs-st.lastDepthEventMs > g.Cfg.MaxStalenessMs {
			g.block("stale")
			g.Stats.StaleTrips++
			g.trip(book, order.Symbol, nowMs, "stale")
			return blockedRejection(order.ID, "stale")
		}
	}

	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		g.block("missing_side")
		g.Stats.MissingSideTrips++
		g.trip(book, order.Symbol, nowMs, "missing_side")
		return blockedRejection(order.ID, "missing_side")
	}
	if bid >= ask {
		g.block("crossed")
		g.Stats.CrossTrips++
		g.trip(book, order.Symbol, nowMs, "crossed")
		return blockedRejection(order.ID, "crossed")
	}
	if g.spreadExceeded(book) {
		g.block("spread")
		g.Stats.SpreadTrips++
		g.trip(book, order.Symbol, nowMs, "spread")
		return blockedRejection(order.ID, "spread")
	}

	return g.Inner.Submit(order, book, nowMs)
}

// The remaining methods delegate straight through to Inner; the guard
// only intercepts Submit and OnDepthUpdate.

func (g *BookGuardedBroker) OnTime(nowMs int64) { g.Inner.OnTime(nowMs) }

func (g *BookGuardedBroker) Cancel(orderID string, nowMs int64) { g.Inner.Cancel(orderID, nowMs) }

func (g *BookGuardedBroker) CancelSymbolOrders(symbol string, nowMs int64) {
	g.Inner.CancelSymbolOrders(symbol, nowMs)
}

func (g *BookGuardedBroker) OnTrade(trade core.Trade, nowMs int64) { g.Inner.OnTrade(trade, nowMs) }

func (g *BookGuardedBroker) HasOpenOrders(symbol string) bool { return g.Inner.HasOpenOrders(symbol) }

func (g *BookGuardedBroker) HasPendingOrders(symbol string) bool {
	return g.Inner.HasPendingOrders(symbol)
}

func (g *BookGuardedBroker) Fills() []core.Fill { return g.Inner.Fills() }

func (g *BookGuardedBroker) block(reason string) {
	g.Stats.BlockedSubmits++
	g.Stats.BlockedSubmitReason[reason]++
}

func blockedRejection(orderID, reason string) *core.Rejection {
	return &core.Rejection{OrderID: orderID, Kind: string(errs.GuardBlocked), Reason: reason}
}

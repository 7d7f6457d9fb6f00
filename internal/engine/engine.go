package engine

import (
	"fmt"

	"backtestengine/internal/broker"
	"backtestengine/internal/core"
	"backtestengine/internal/errs"
	"backtestengine/internal/guard"
	"backtestengine/internal/logger"
	"backtestengine/internal/merge"
	"backtestengine/internal/orderbook"
)

// Strategy is the capability set a caller may implement; every method set
// is optional — the engine type-asserts for each.
type Strategy interface{}

// Result is the engine's final context handed back to the caller: books,
// portfolio, the broker's fill list, and per-event-type counts.
type Result struct {
	Books        map[string]*orderbook.Book
	Portfolio    *core.Portfolio
	Broker       *broker.SimBroker
	GuardStats   *guard.Stats
	EventCounts  map[string]int64
}

// Engine owns the broker, per-symbol books and latched snapshots for one
// backtest run. It is the sole owner of that state; multiple engines may
// run in one process without interference.
type Engine struct {
	cfg       Config
	brokerCfg broker.Config
	guardCfg  guard.Config
	log       *logger.Logger

	books            map[string]*orderbook.Book
	lastTicker       map[string]core.Ticker
	lastOpenInterest map[string]core.OpenInterest
	lastLiquidation  map[string]core.Liquidation

	portfolio   *core.Portfolio
	simBroker   *broker.SimBroker
	guarded     *guard.BookGuardedBroker
	activeInner innerBroker
	proxy       *tradingWindowProxy

	nowMs               int64
	haveAnchor          bool
	anchorMs            int64
	nextTickMs          int64
	fundingBoundary     map[string]int64 // symbol -> last-applied next_funding_time_ms.

	eventCounts map[string]int64
}

// New constructs an Engine over cfg/brokerCfg/guardCfg. A nil logger is
// replaced with a no-op logger.
func New(cfg Config, brokerCfg broker.Config, guardCfg guard.Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	portfolio := core.NewPortfolio()
	simBroker := broker.NewSimBroker(brokerCfg, portfolio, log)

	e := &Engine{
		cfg:              cfg,
		brokerCfg:        brokerCfg,
		guardCfg:         guardCfg,
		log:              log,
		books:            make(map[string]*orderbook.Book),
		lastTicker:       make(map[string]core.Ticker),
		lastOpenInterest: make(map[string]core.OpenInterest),
		lastLiquidation:  make(map[string]core.Liquidation),
		portfolio:        portfolio,
		simBroker:        simBroker,
		fundingBoundary:  make(map[string]int64),
		eventCounts:      make(map[string]int64),
	}

	if cfg.BookGuardEnabled {
		e.guarded = guard.New(simBroker, cfg.BookGuardSymbol, guardCfg)
		e.activeInner = e.guarded
	} else {
		e.activeInner = simBroker
	}
	e.proxy = newTradingWindowProxy(e.activeInner, e.books, portfolio, cfg, &e.nowMs)

	return e
}

func (e *Engine) book(symbol string) *orderbook.Book {
	b, ok := e.books[symbol]
	if !ok {
		b = orderbook.New(symbol)
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) context() *core.Context {
	books := make(map[string]core.BookView, len(e.books))
	for sym, b := range e.books {
		books[sym] = b
	}
	return &core.Context{
		NowMs:            e.nowMs,
		Books:            books,
		LastTicker:       e.lastTicker,
		LastOpenInterest: e.lastOpenInterest,
		LastLiquidation:  e.lastLiquidation,
		Broker:           e.proxy,
		Portfolio:        e.portfolio,
	}
}

// Run drives the merged event stream src against strategy until
// exhaustion, returning the final Result. It fails fast with an
// *errs.CoreError of kind OutOfOrderEvent when cfg.StrictEventTimeMonotonic
// is set and an event regresses.
func (e *Engine) Run(src merge.Source, strategy Strategy) (*Result, error) {
	eventStrategy, _ := strategy.(core.EventStrategy)
	tickStrategy, _ := strategy.(core.TickStrategy)
	lifecycle, _ := strategy.(core.LifecycleStrategy)

	if lifecycle != nil {
		lifecycle.OnStart(e.context())
	}

	for {
		event, ok := src.Next()
		if !ok {
			break
		}

		if e.cfg.StrictEventTimeMonotonic && e.haveAnchor && event.Time() < e.nowMs {
			return e.result(), errs.New(errs.OutOfOrderEvent, "event_time_ms %d precedes current clock %d", event.Time(), e.nowMs)
		}

		if !e.haveAnchor {
			e.haveAnchor = true
			e.anchorMs = event.Time()
			e.nextTickMs = e.anchorMs
		}
		e.nowMs = event.Time()

		e.emitDueTicks(e.nowMs, tickStrategy)

		if e.cfg.BrokerTimeMode == BeforeEvent {
			e.activeInner.OnTime(e.nowMs)
		}

		e.applyEvent(event)

		if e.cfg.BrokerTimeMode == AfterEvent {
			e.activeInner.OnTime(e.nowMs)
		}

		e.countEvent(event)

		if eventStrategy != nil {
			eventStrategy.OnEvent(event, e.context())
		}
	}

	if e.cfg.EmitFinalTick && e.cfg.TickIntervalMs > 0 && e.haveAnchor {
		e.emitOneTick(e.nextTickMs, tickStrategy)
	}

	if lifecycle != nil {
		lifecycle.OnEnd(e.context())
	}

	return e.result(), nil
}

func (e *Engine) result() *Result {
	var guardStats *guard.Stats
	if e.guarded != nil {
		guardStats = &e.guarded.Stats
	}
	return &Result{
		Books:       e.books,
		Portfolio:   e.portfolio,
		Broker:      e.simBroker,
		GuardStats:  guardStats,
		EventCounts: e.eventCounts,
	}
}

func (e *Engine) countEvent(event core.Event) {
	e.eventCounts[eventTypeName(event)]++
}

func eventTypeName(event core.Event) string {
	switch event.(type) {
	case core.DepthUpdate:
		return "depth"
	case core.Trade:
		return "trade"
	case core.MarkPrice:
		return "mark"
	case core.Ticker:
		return "ticker"
	case core.OpenInterest:
		return "open_interest"
	case core.Liquidation:
		return "liquidation"
	default:
		return fmt.Sprintf("%T", event)
	}
}

// emitDueTicks fires on_tick for every grid boundary T, T+Δ, ... up to
// and including any tick <= nowMs not yet emitted.
func (e *Engine) emitDueTicks(nowMs int64, tickStrategy core.TickStrategy) {
	if e.cfg.TickIntervalMs <= 0 {
		return
	}
	for e.nextTickMs <= nowMs {
		e.emitOneTick(e.nextTickMs, tickStrategy)
		e.nextTickMs += e.cfg.TickIntervalMs
	}
}

func (e *Engine) emitOneTick(tickMs int64, tickStrategy core.TickStrategy) {
	e.activeInner.OnTime(tickMs)
	if tickStrategy != nil {
		saved := e.nowMs
		e.nowMs = tickMs
		tickStrategy.OnTick(tickMs, e.context())
		e.nowMs = saved
	}
}

// applyEvent dispatches one event by variant.
func (e *Engine) applyEvent(event core.Event) {
	switch ev := event.(type) {
	case core.DepthUpdate:
		book := e.book(ev.Symbol)
		e.activeInner.OnDepthUpdate(ev, book)
	case core.Trade:
		e.activeInner.OnTrade(ev, e.nowMs)
	case core.MarkPrice:
		e.applyMark(ev)
	case core.Ticker:
		e.lastTicker[ev.Symbol] = ev
	case core.OpenInterest:
		e.lastOpenInterest[ev.Symbol] = ev
	case core.Liquidation:
		e.lastLiquidation[ev.Symbol] = ev
	}
}

// applyMark latches the mark price and applies funding exactly once per
// next_funding_time_ms crossing.
func (e *Engine) applyMark(ev core.MarkPrice) {
	e.portfolio.LatchMark(ev.Symbol, ev.MarkPriceValue)

	crossed := ev.NextFundingTimeMs > 0 && e.nowMs >= ev.NextFundingTimeMs
	alreadyApplied := e.fundingBoundary[ev.Symbol] == ev.NextFundingTimeMs
	if !crossed || alreadyApplied {
		return
	}
	e.fundingBoundary[ev.Symbol] = ev.NextFundingTimeMs

	if !e.cfg.FundingAppliesToAllPositions {
		e.portfolio.ApplyFunding(ev.Symbol, ev.MarkPriceValue, ev.FundingRate)
		return
	}

	for symbol, pos := range e.portfolio.Positions {
		if pos.NetQty == 0 {
			continue
		}
		mark := ev.MarkPriceValue
		rate := ev.FundingRate
		if symbol != ev.Symbol && pos.HasMark {
			mark = pos.LastMarkPrice
			rate = ev.FundingRate
		}
		e.portfolio.ApplyFunding(symbol, mark, rate)
	}
}

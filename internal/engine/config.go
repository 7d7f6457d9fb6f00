// Package engine drives the discrete-tick backtest loop: it owns
// per-symbol books and latched snapshots, merges the event stream,
// dispatches to the strategy, and advances the broker at the configured
// moments.
package engine

// TradingWindowMode controls how the trading-window proxy treats submits
// outside [TradingStartMs, TradingEndMs).
type TradingWindowMode int

const (
	// EntryOnly allows reducing orders through outside the window
	// (subject to AllowReducingOutsideTradingWindow); new entries block.
	EntryOnly TradingWindowMode = iota
	// BlockAll blocks every submit outside the window.
	BlockAll
)

// BrokerTimeMode controls when broker.OnTime runs relative to event
// application within one loop iteration.
type BrokerTimeMode int

const (
	// AfterEvent runs broker.OnTime after the event is applied (default).
	AfterEvent BrokerTimeMode = iota
	// BeforeEvent runs broker.OnTime before the event is applied.
	BeforeEvent
)

// Config enumerates the engine loop's recognized options.
type Config struct {
	// TickIntervalMs of 0 disables ticks; otherwise on_tick fires on a
	// fixed grid anchored at the first observed event's timestamp.
	TickIntervalMs int64

	HasTradingWindow bool
	TradingStartMs   int64
	TradingEndMs     int64

	TradingWindowMode                 TradingWindowMode
	AllowReducingOutsideTradingWindow bool

	BrokerTimeMode BrokerTimeMode

	StrictEventTimeMonotonic bool

	BookGuardEnabled bool
	BookGuardSymbol  string // Empty means the guard applies to all symbols.

	// FundingAppliesToAllPositions controls funding settlement scope:
	// when false (the default, and the literal per-event reading), a
	// mark crossing its funding boundary settles only the symbol whose
	// mark arrived. When true, it settles every symbol currently holding
	// a position, using each symbol's own last-known mark where one is
	// latched, and the arriving mark's funding rate for every symbol.
	FundingAppliesToAllPositions bool

	// EmitFinalTick, when TickIntervalMs is non-zero, fires one last
	// on_tick on the next unconsumed grid boundary after the event loop
	// drains (supplemental feature, default on).
	EmitFinalTick bool
}

// NewConfig returns a Config with the engine's documented defaults: no
// ticks, no trading window, after-event broker timing, non-strict event
// ordering, guard disabled, funding scoped to the arriving symbol, and
// final-tick emission enabled.
func NewConfig() Config {
	return Config{
		BrokerTimeMode: AfterEvent,
		EmitFinalTick:  true,
	}
}

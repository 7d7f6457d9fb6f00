package guard

import (
	"testing"

	"backtestengine/internal/broker"
	"backtestengine/internal/core"
	"backtestengine/internal/orderbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedBroker(cfg Config) (*BookGuardedBroker, *orderbook.Book) {
	portfolio := core.NewPortfolio()
	inner := broker.NewSimBroker(broker.NewConfig(), portfolio, nil)
	book := orderbook.New("BTCUSDT")
	book.ApplyDepthUpdate(core.DepthUpdate{
		Symbol:     "BTCUSDT",
		BidUpdates: []core.PriceLevel{{Price: 99, Qty: 5}},
		AskUpdates: []core.PriceLevel{{Price: 100, Qty: 5}},
	})
	return New(inner, "BTCUSDT", cfg), book
}

func TestSubmitPassesThroughWhenDisabled(t *testing.T) {
	g, book := newGuardedBroker(Config{Enabled: false})
	rej := g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 0)
	assert.Nil(t, rej)
}

func TestSubmitBlockedDuringWarmup(t *testing.T) {
	cfg := Config{Enabled: true, WarmupDepthUpdates: 1}
	g, book := newGuardedBroker(cfg)
	st := g.state("BTCUSDT")
	st.warmupRemaining = 1

	rej := g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 0)
	require.NotNil(t, rej)
	assert.Equal(t, "warmup", rej.Reason)
	assert.Equal(t, int64(1), g.Stats.BlockedSubmits)
}

func TestSubmitBlockedOnExcessSpreadBps(t *testing.T) {
	cfg := Config{Enabled: true, HasMaxSpreadBps: true, MaxSpreadBps: 1}
	g, book := newGuardedBroker(cfg) // spread is 1/99.5*10000 ~= 100bps, far above 1bps.

	rej := g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 0)
	require.NotNil(t, rej)
	assert.Equal(t, "spread", rej.Reason)
	assert.Equal(t, int64(1), g.Stats.SpreadTrips)
}

func TestOnDepthUpdateTripsOnExcessSpreadWithoutAnySubmit(t *testing.T) {
	cfg := Config{Enabled: true, HasMaxSpreadBps: true, MaxSpreadBps: 1, CooldownMs: 50}
	g, book := newGuardedBroker(cfg) // spread is ~100bps, far above the 1bps ceiling.

	g.OnDepthUpdate(core.DepthUpdate{
		Symbol:      "BTCUSDT",
		EventTimeMs: 5,
		BidUpdates:  []core.PriceLevel{{Price: 99, Qty: 5}},
		AskUpdates:  []core.PriceLevel{{Price: 100, Qty: 5}},
	}, book)

	assert.Equal(t, int64(1), g.Stats.SpreadTrips)
	assert.Equal(t, int64(0), g.Stats.BlockedSubmits) // depth-update trips never count as blocked submits.

	rej := g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 10)
	require.NotNil(t, rej)
	assert.Equal(t, "cooldown", rej.Reason) // still inside the cooldown the depth-update trip started.
}

func TestOnDepthUpdateDoesNotDoubleTripWhenBookIsCrossed(t *testing.T) {
	cfg := Config{Enabled: true, HasMaxSpreadBps: true, MaxSpreadBps: 1}
	g, book := newGuardedBroker(cfg)

	g.OnDepthUpdate(core.DepthUpdate{
		Symbol:      "BTCUSDT",
		EventTimeMs: 5,
		BidUpdates:  []core.PriceLevel{{Price: 101, Qty: 5}},
		AskUpdates:  []core.PriceLevel{{Price: 100, Qty: 5}},
	}, book)

	assert.Equal(t, int64(1), g.Stats.CrossTrips)
	assert.Equal(t, int64(0), g.Stats.SpreadTrips)
}

func TestSubmitBlockedWhenStale(t *testing.T) {
	cfg := Config{Enabled: true, MaxStalenessMs: 100}
	g, book := newGuardedBroker(cfg)
	g.OnDepthUpdate(core.DepthUpdate{Symbol: "BTCUSDT", EventTimeMs: 0}, book)

	rej := g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 1000)
	require.NotNil(t, rej)
	assert.Equal(t, "stale", rej.Reason)
}

func TestCooldownBlocksFollowingSubmitsUntilExpiry(t *testing.T) {
	cfg := Config{Enabled: true, HasMaxSpreadBps: true, MaxSpreadBps: 1, CooldownMs: 50}
	g, book := newGuardedBroker(cfg)

	g.Submit(core.Order{ID: "o1", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 0)
	rej := g.Submit(core.Order{ID: "o2", Symbol: "BTCUSDT", Side: core.Buy, OrderType: core.Market, Quantity: 1}, book, 10)
	require.NotNil(t, rej)
	assert.Equal(t, "cooldown", rej.Reason)
}

func TestMismatchTripInvalidatesPendingAndResetsBook(t *testing.T) {
	cfg := Config{Enabled: true, ResetOnMismatch: true}
	g, book := newGuardedBroker(cfg)

	g.OnDepthUpdate(core.DepthUpdate{Symbol: "BTCUSDT", EventTimeMs: 1, FinalUpdateID: 5}, book)
	// Next update's PrevFinalUpdateID doesn't match the last FinalUpdateID -> mismatch.
	g.OnDepthUpdate(core.DepthUpdate{Symbol: "BTCUSDT", EventTimeMs: 2, PrevFinalUpdateID: 999, FinalUpdateID: 6}, book)

	assert.Equal(t, int64(1), g.Stats.MismatchTrips)
	assert.Equal(t, int64(1), g.Stats.Resets)
}

func TestSymbolApplies(t *testing.T) {
	g := &BookGuardedBroker{Symbol: "BTCUSDT"}
	assert.True(t, g.symbolApplies("BTCUSDT"))
	assert.False(t, g.symbolApplies("ETHUSDT"))

	all := &BookGuardedBroker{Symbol: ""}
	assert.True(t, all.symbolApplies("ETHUSDT"))
}

package engine

import (
	"testing"

	"backtestengine/internal/broker"
	"backtestengine/internal/core"
	"backtestengine/internal/errs"
	"backtestengine/internal/guard"
	"backtestengine/internal/merge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStrategy struct {
	events []core.Event
	ticks  []int64
	ended  bool
}

func (s *recordingStrategy) OnEvent(event core.Event, ctx *core.Context) {
	s.events = append(s.events, event)
}
func (s *recordingStrategy) OnTick(tickMs int64, ctx *core.Context) { s.ticks = append(s.ticks, tickMs) }
func (s *recordingStrategy) OnStart(ctx *core.Context)              {}
func (s *recordingStrategy) OnEnd(ctx *core.Context)                { s.ended = true }

func TestRunAppliesDepthUpdatesToBook(t *testing.T) {
	e := New(NewConfig(), broker.NewConfig(), guard.NewConfig(), nil)
	src := merge.NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 1, Symbol: "BTCUSDT", BidUpdates: []core.PriceLevel{{Price: 99, Qty: 1}}, AskUpdates: []core.PriceLevel{{Price: 100, Qty: 1}}},
	})

	result, err := e.Run(src, &recordingStrategy{})
	require.NoError(t, err)

	bid, ok := result.Books["BTCUSDT"].BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.0, bid)
}

func TestRunDeliversEventsAndCountsThem(t *testing.T) {
	e := New(NewConfig(), broker.NewConfig(), guard.NewConfig(), nil)
	strat := &recordingStrategy{}
	src := merge.NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 1, Symbol: "BTCUSDT"},
		core.Trade{EventTimeMs: 2, Symbol: "BTCUSDT", Price: 100, Quantity: 1},
	})

	result, err := e.Run(src, strat)
	require.NoError(t, err)
	assert.Len(t, strat.events, 2)
	assert.Equal(t, int64(1), result.EventCounts["depth"])
	assert.Equal(t, int64(1), result.EventCounts["trade"])
}

func TestRunFiresLifecycleHooks(t *testing.T) {
	e := New(NewConfig(), broker.NewConfig(), guard.NewConfig(), nil)
	strat := &recordingStrategy{}
	src := merge.NewSliceSource([]core.Event{core.Trade{EventTimeMs: 1, Symbol: "BTCUSDT"}})

	_, err := e.Run(src, strat)
	require.NoError(t, err)
	assert.True(t, strat.ended)
}

func TestRunEmitsTicksOnFixedGrid(t *testing.T) {
	cfg := NewConfig()
	cfg.TickIntervalMs = 10
	e := New(cfg, broker.NewConfig(), guard.NewConfig(), nil)
	strat := &recordingStrategy{}
	src := merge.NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 0, Symbol: "BTCUSDT"},
		core.Trade{EventTimeMs: 25, Symbol: "BTCUSDT"},
	})

	_, err := e.Run(src, strat)
	require.NoError(t, err)
	// 30 is the final tick fired after the loop drains (EmitFinalTick defaults on).
	assert.Equal(t, []int64{0, 10, 20, 30}, strat.ticks)
}

func TestRunFailsFastOnOutOfOrderEventWhenStrict(t *testing.T) {
	cfg := NewConfig()
	cfg.StrictEventTimeMonotonic = true
	e := New(cfg, broker.NewConfig(), guard.NewConfig(), nil)
	src := merge.NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 10, Symbol: "BTCUSDT"},
		core.Trade{EventTimeMs: 5, Symbol: "BTCUSDT"},
	})

	_, err := e.Run(src, &recordingStrategy{})
	require.Error(t, err)
	var coreErr *errs.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, errs.OutOfOrderEvent, coreErr.Kind())
}

func TestApplyMarkSettlesFundingOncePerBoundaryCrossing(t *testing.T) {
	e := New(NewConfig(), broker.NewConfig(), guard.NewConfig(), nil)
	src := merge.NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 1, Symbol: "BTCUSDT", Price: 100, Quantity: 1, IsBuyerMaker: false},
		core.MarkPrice{EventTimeMs: 2, Symbol: "BTCUSDT", MarkPriceValue: 100, FundingRate: 0.001, NextFundingTimeMs: 2},
		core.MarkPrice{EventTimeMs: 3, Symbol: "BTCUSDT", MarkPriceValue: 100, FundingRate: 0.001, NextFundingTimeMs: 2},
	})

	result, err := e.Run(src, &recordingStrategy{})
	require.NoError(t, err)
	// Funding must apply exactly once across the two marks sharing the same boundary.
	assert.NotEqual(t, 0.0, result.Portfolio.Positions["BTCUSDT"].NetQty)
}

func TestRunWithBookGuardEnabledPopulatesGuardStats(t *testing.T) {
	cfg := NewConfig()
	cfg.BookGuardEnabled = true
	gcfg := guard.NewConfig()
	gcfg.Enabled = true
	e := New(cfg, broker.NewConfig(), gcfg, nil)
	src := merge.NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 1, Symbol: "BTCUSDT", BidUpdates: []core.PriceLevel{{Price: 99, Qty: 1}}, AskUpdates: []core.PriceLevel{{Price: 100, Qty: 1}}},
	})

	result, err := e.Run(src, &recordingStrategy{})
	require.NoError(t, err)
	require.NotNil(t, result.GuardStats)
}

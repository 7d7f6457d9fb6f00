package orderbook

import (
	"testing"

	"backtestengine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyDepth(b *Book, bids, asks []core.PriceLevel) {
	b.ApplyDepthUpdate(core.DepthUpdate{Symbol: b.Symbol, BidUpdates: bids, AskUpdates: asks})
}

func TestApplyDepthUpdateSetsAndRemovesLevels(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, []core.PriceLevel{{Price: 100, Qty: 1}}, []core.PriceLevel{{Price: 101, Qty: 2}})

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 101.0, ask)

	applyDepth(b, []core.PriceLevel{{Price: 100, Qty: 0}}, nil)
	_, ok = b.BestBid()
	assert.False(t, ok)
}

func TestMidAndCrossed(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, []core.PriceLevel{{Price: 100, Qty: 1}}, []core.PriceLevel{{Price: 102, Qty: 1}})

	mid, ok := b.Mid()
	require.True(t, ok)
	assert.Equal(t, 101.0, mid)
	assert.False(t, b.Crossed())

	applyDepth(b, []core.PriceLevel{{Price: 103, Qty: 1}}, nil)
	assert.True(t, b.Crossed())
}

func TestImpactVWAPWalksAscendingAsksForBuy(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, nil, []core.PriceLevel{
		{Price: 100, Qty: 1},
		{Price: 101, Qty: 1},
		{Price: 102, Qty: 10},
	})

	vwap, notional, ok := b.ImpactVWAP(core.Buy, 201, 0, 1e-6)
	require.True(t, ok)
	assert.InDelta(t, 201.0/2.0, vwap, 1e-9)
	assert.InDelta(t, 201.0, notional, 1e-6)
}

func TestImpactVWAPRetriesBeyondMaxLevels(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, nil, []core.PriceLevel{
		{Price: 100, Qty: 1},
		{Price: 101, Qty: 1},
		{Price: 102, Qty: 10},
	})

	// maxLevels=1 cannot reach the target; ImpactVWAP retries unbounded.
	vwap, _, ok := b.ImpactVWAP(core.Buy, 500, 1, 1e-6)
	require.True(t, ok)
	assert.Greater(t, vwap, 100.0)
}

func TestApplyLevelSelfImpact(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, nil, []core.PriceLevel{{Price: 100, Qty: 5}})

	b.ApplyLevel(core.Buy, 100, 2) // Buy consumes asks.
	assert.Equal(t, 2.0, b.QtyAt(core.Sell, 100))

	b.ApplyLevel(core.Buy, 100, 0)
	assert.Equal(t, 0.0, b.QtyAt(core.Sell, 100))
}

func TestResetClearsBothSides(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, []core.PriceLevel{{Price: 100, Qty: 1}}, []core.PriceLevel{{Price: 101, Qty: 1}})
	b.Reset()

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	b := New("BTCUSDT")
	applyDepth(b, []core.PriceLevel{{Price: 100, Qty: 1}}, []core.PriceLevel{{Price: 101, Qty: 1}})

	clone := b.Clone()
	clone.ApplyLevel(core.Sell, 100, 0)

	assert.Equal(t, 1.0, b.QtyAt(core.Buy, 100))
	assert.Equal(t, 0.0, clone.QtyAt(core.Buy, 100))
}

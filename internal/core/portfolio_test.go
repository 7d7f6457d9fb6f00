package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFillOpensPosition(t *testing.T) {
	p := NewPortfolio()
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 100, Quantity: 1})

	pos := p.Positions["BTCUSDT"]
	require.NotNil(t, pos)
	assert.Equal(t, 1.0, pos.NetQty)
	assert.Equal(t, 100.0, pos.AvgEntryPrice)
	assert.Equal(t, 0.0, p.RealizedPnlUsdt)
}

func TestApplyFillBlendsEntryPriceWhenAdding(t *testing.T) {
	p := NewPortfolio()
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 100, Quantity: 1})
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 200, Quantity: 1})

	pos := p.Positions["BTCUSDT"]
	assert.Equal(t, 2.0, pos.NetQty)
	assert.Equal(t, 150.0, pos.AvgEntryPrice)
}

func TestApplyFillRealizesPnlOnlyOnReducingPortion(t *testing.T) {
	p := NewPortfolio()
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 100, Quantity: 2})
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Sell, Price: 110, Quantity: 1})

	pos := p.Positions["BTCUSDT"]
	assert.Equal(t, 1.0, pos.NetQty)
	assert.Equal(t, 100.0, pos.AvgEntryPrice) // Unchanged: remaining lot not re-priced.
	assert.InDelta(t, 10.0, p.RealizedPnlUsdt, 1e-9)
}

func TestApplyFillFlipsThroughZero(t *testing.T) {
	p := NewPortfolio()
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 100, Quantity: 1})
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Sell, Price: 120, Quantity: 3})

	pos := p.Positions["BTCUSDT"]
	assert.Equal(t, -2.0, pos.NetQty)
	assert.Equal(t, 120.0, pos.AvgEntryPrice) // Flipped remainder re-opens at the fill price.
	assert.InDelta(t, 20.0, p.RealizedPnlUsdt, 1e-9)
}

func TestApplyFunding(t *testing.T) {
	p := NewPortfolio()
	p.ApplyFill(Fill{Symbol: "BTCUSDT", Side: Buy, Price: 100, Quantity: 2})
	p.ApplyFunding("BTCUSDT", 100, 0.0001)

	assert.InDelta(t, -0.02, p.RealizedPnlUsdt, 1e-12)
}

func TestLatchMarkCreatesPositionLazily(t *testing.T) {
	p := NewPortfolio()
	p.LatchMark("ETHUSDT", 3000)

	pos := p.Positions["ETHUSDT"]
	require.NotNil(t, pos)
	assert.True(t, pos.HasMark)
	assert.Equal(t, 3000.0, pos.LastMarkPrice)
	assert.Equal(t, 0.0, pos.NetQty)
}

package execution

import (
	"testing"

	"backtestengine/internal/core"
	"backtestengine/internal/orderbook"

	"github.com/stretchr/testify/assert"
)

func newBookForTaker() *orderbook.Book {
	b := orderbook.New("BTCUSDT")
	b.ApplyDepthUpdate(core.DepthUpdate{
		Symbol: "BTCUSDT",
		BidUpdates: []core.PriceLevel{{Price: 99, Qty: 5}, {Price: 98, Qty: 5}},
		AskUpdates: []core.PriceLevel{{Price: 100, Qty: 1}, {Price: 101, Qty: 2}},
	})
	return b
}

func TestConsumeTakerFillWalksLevelsAndMutatesBook(t *testing.T) {
	b := newBookForTaker()

	avgPx, filled := ConsumeTakerFill(b, core.Buy, 2, 0, false)
	assert.InDelta(t, 2.0, filled, 1e-9)
	assert.InDelta(t, (100*1+101*1)/2.0, avgPx, 1e-9)
	assert.Equal(t, 0.0, b.QtyAt(core.Sell, 100))
	assert.Equal(t, 1.0, b.QtyAt(core.Sell, 101))
}

func TestConsumeTakerFillRespectsLimitPrice(t *testing.T) {
	b := newBookForTaker()

	_, filled := ConsumeTakerFill(b, core.Buy, 5, 100, true)
	assert.InDelta(t, 1.0, filled, 1e-9) // Only the 100 level is within the limit.
}

func TestConsumeTakerFillEmptyBookReturnsNaN(t *testing.T) {
	b := orderbook.New("BTCUSDT")
	avgPx, filled := ConsumeTakerFill(b, core.Buy, 1, 0, false)
	assert.Equal(t, 0.0, filled)
	assert.True(t, avgPx != avgPx) // NaN check.
}

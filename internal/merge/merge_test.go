package merge

import (
	"testing"

	"backtestengine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, m *Merger) []core.Event {
	t.Helper()
	var out []core.Event
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func TestMergerOrdersByEventTime(t *testing.T) {
	src1 := NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 10, TradeID: 1},
		core.Trade{EventTimeMs: 30, TradeID: 2},
	})
	src2 := NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 20, TradeID: 3},
	})

	m := New(src1, src2)
	out := drain(t, m)

	require.Len(t, out, 3)
	assert.Equal(t, int64(10), out[0].Time())
	assert.Equal(t, int64(20), out[1].Time())
	assert.Equal(t, int64(30), out[2].Time())
}

func TestMergerTieBreakByTypePriorityThenIdentifier(t *testing.T) {
	src1 := NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 10, TradeID: 5},
	})
	src2 := NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 10, FinalUpdateID: 1},
	})

	m := New(src1, src2)
	out := drain(t, m)

	require.Len(t, out, 2)
	_, isDepth := out[0].(core.DepthUpdate)
	assert.True(t, isDepth, "depth update must sort before trade at the same event time")
}

func TestMergerMissingReceivedTimeSortsLast(t *testing.T) {
	src1 := NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 10, ReceivedTimeNs: 0, FinalUpdateID: 1},
	})
	src2 := NewSliceSource([]core.Event{
		core.DepthUpdate{EventTimeMs: 10, ReceivedTimeNs: 5, FinalUpdateID: 2},
	})

	m := New(src1, src2)
	out := drain(t, m)

	require.Len(t, out, 2)
	first := out[0].(core.DepthUpdate)
	assert.Equal(t, int64(2), first.FinalUpdateID, "the event carrying a received time sorts before the one missing it")
}

func TestMergerStreamIndexTieBreak(t *testing.T) {
	src1 := NewSliceSource([]core.Event{core.Ticker{EventTimeMs: 10, Symbol: "A"}})
	src2 := NewSliceSource([]core.Event{core.Ticker{EventTimeMs: 10, Symbol: "B"}})

	m := New(src1, src2)
	out := drain(t, m)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].(core.Ticker).Symbol, "equal keys fall back to the order the sources were passed in")
}

func TestWindowSourceFiltersOutsideRange(t *testing.T) {
	inner := NewSliceSource([]core.Event{
		core.Trade{EventTimeMs: 5},
		core.Trade{EventTimeMs: 10},
		core.Trade{EventTimeMs: 20},
	})
	w := NewWindowSource(inner, 10, 20, true, true)

	e, ok := w.Next()
	require.True(t, ok)
	assert.Equal(t, int64(10), e.Time())

	_, ok = w.Next()
	assert.False(t, ok)
}

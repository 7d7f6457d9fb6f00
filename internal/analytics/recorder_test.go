package analytics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backtestengine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFillRecorderWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fills.csv")

	r, err := NewFillRecorder(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "event_time_ms", rows[0][0])
}

func TestRecordPersistsFillRowEventually(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fills.csv")

	r, err := NewFillRecorder(path, nil)
	require.NoError(t, err)
	r.Record(core.Fill{EventTimeMs: 5, OrderID: "o1", Symbol: "BTCUSDT", Side: core.Buy, Price: 100, Quantity: 1, Liquidity: core.Taker})
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "o1", rows[1][1])
}

func TestNewEquityRecorderWriteAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "equity.csv")

	r, err := NewEquityRecorder(path)
	require.NoError(t, err)
	err = r.WriteAll([]EquityPoint{{TimeMs: 0, Equity: 10.5}, {TimeMs: 1000, Equity: 12.25}})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "12.25000000", rows[2][1])
}

func TestRecordDropsRowsWhenBufferSaturated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fills.csv")

	r, err := NewFillRecorder(path, nil)
	require.NoError(t, err)
	defer r.Close()

	// Flood well past the buffer capacity; Record must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 60_000; i++ {
			r.Record(core.Fill{OrderID: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked instead of dropping excess rows")
	}
}

// Package adapter provides dataset and live-feed adapters that satisfy
// the core's merge.Source contract: each adapter emits one
// source's events, stably sorted by its natural identifier, with the
// adapter — not the engine — responsible for undoing any physical-layout
// interleaving and enforcing its own resource limits.
package adapter

import (
	"sort"

	"backtestengine/internal/core"
	"backtestengine/internal/errs"
	"backtestengine/internal/merge"
)

// Kind identifies which event stream a HistoricalSource carries.
type Kind string

const (
	KindDepth       Kind = "orderbook"
	KindTrades      Kind = "trades"
	KindMarkPrice   Kind = "mark_price"
	KindTicker      Kind = "ticker"
	KindOpenInterest Kind = "open_interest"
	KindLiquidation Kind = "liquidations"
)

// HistoricalSource adapts an in-memory batch of rows for one event kind
// into a merge.Source: it stably re-sorts by the kind's natural
// identifier (final_update_id for depth, trade_id for trades, event time
// otherwise) and deduplicates by natural key, undoing any interleaving
// introduced by the row store's physical layout.
type HistoricalSource struct {
	kind   Kind
	events []core.Event
	pos    int
}

// MaxRowsInMemory bounds how many rows NewHistoricalSource will accept
// before failing with ResourceExhausted, mirroring the adapter's
// obligation to enforce a configurable in-memory sort row limit.
var MaxRowsInMemory = 2_000_000

// NewHistoricalSource builds a HistoricalSource for kind from rows,
// validating each row has the fields the kind requires, stably sorting
// by natural identifier, and deduplicating by natural key (keep-last).
func NewHistoricalSource(kind Kind, rows []core.Event) (*HistoricalSource, error) {
	if len(rows) > MaxRowsInMemory {
		return nil, errs.New(errs.ResourceExhausted, "%s: %d rows exceeds in-memory sort limit %d", kind, len(rows), MaxRowsInMemory)
	}
	for i, r := range rows {
		if err := validateRow(kind, r); err != nil {
			return nil, errs.New(errs.SchemaError, "%s: row %d: %s", kind, i, err)
		}
	}

	sorted := stableSortByIdentifier(kind, rows)
	deduped := dedupKeepLast(kind, sorted)
	return &HistoricalSource{kind: kind, events: deduped}, nil
}

func (s *HistoricalSource) Next() (core.Event, bool) {
	if s.pos >= len(s.events) {
		return nil, false
	}
	e := s.events[s.pos]
	s.pos++
	return e, true
}

var _ merge.Source = (*HistoricalSource)(nil)

func validateRow(kind Kind, e core.Event) error {
	switch v := e.(type) {
	case core.DepthUpdate:
		if v.Symbol == "" {
			return errs.New(errs.SchemaError, "depth row missing symbol")
		}
	case core.Trade:
		if v.Symbol == "" {
			return errs.New(errs.SchemaError, "trade row missing symbol")
		}
	case core.MarkPrice:
		if v.Symbol == "" {
			return errs.New(errs.SchemaError, "mark_price row missing symbol")
		}
	}
	return nil
}

// stableSortByIdentifier re-sorts rows by the kind's natural identifier —
// final_update_id for depth, trade_id for trades, event time for
// everything else — breaking physical-layout interleaving deterministically.
func stableSortByIdentifier(kind Kind, rows []core.Event) []core.Event {
	out := make([]core.Event, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return naturalID(kind, out[i]) < naturalID(kind, out[j])
	})
	return out
}

func naturalID(kind Kind, e core.Event) int64 {
	switch kind {
	case KindDepth:
		if d, ok := e.(core.DepthUpdate); ok {
			return d.FinalUpdateID
		}
	case KindTrades:
		if t, ok := e.(core.Trade); ok {
			return t.TradeID
		}
	}
	return e.Time()
}

// dedupKeepLast drops rows sharing a natural key, keeping the
// last-sorted occurrence.
func dedupKeepLast(kind Kind, rows []core.Event) []core.Event {
	seen := make(map[string]int, len(rows))
	out := make([]core.Event, 0, len(rows))
	for _, r := range rows {
		key := naturalKey(kind, r)
		if idx, ok := seen[key]; ok {
			out[idx] = r
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out
}

func naturalKey(kind Kind, e core.Event) string {
	switch v := e.(type) {
	case core.DepthUpdate:
		return v.Symbol + "|" + itoa(v.FinalUpdateID)
	case core.Trade:
		return v.Symbol + "|" + itoa(v.TradeID)
	case core.MarkPrice:
		return v.Symbol + "|" + itoa(v.EventTimeMs)
	case core.Ticker:
		return v.Symbol + "|" + itoa(v.EventTimeMs)
	case core.OpenInterest:
		return v.Symbol + "|" + itoa(v.EventTimeMs)
	case core.Liquidation:
		return v.Symbol + "|" + itoa(v.EventTimeMs)
	default:
		return itoa(e.Time())
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

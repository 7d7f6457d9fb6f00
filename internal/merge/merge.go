// Package merge performs the k-way, tie-broken merge of per-source event
// iterators into a single time-ordered stream.
package merge

import (
	"container/heap"

	"backtestengine/internal/core"
)

// Source is one sorted-by-event-time input stream. Implementations must
// yield events individually non-decreasing in event time.
type Source interface {
	// Next returns the next event, or ok=false when the source is
	// exhausted. Merge itself does not define an error return: a source
	// that can fail reports it through its own API (the historical
	// adapter fails when it is built, before merge ever sees it).
	Next() (core.Event, bool)
}

// SliceSource adapts an in-memory, already-sorted slice of events into a
// Source, for tests and small datasets.
type SliceSource struct {
	events []core.Event
	pos    int
}

// NewSliceSource returns a Source over events, which must already be
// individually non-decreasing in event time.
func NewSliceSource(events []core.Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next() (core.Event, bool) {
	if s.pos >= len(s.events) {
		return nil, false
	}
	e := s.events[s.pos]
	s.pos++
	return e, true
}

// item is one buffered event sitting at the head of its source, keyed by
// the full deterministic tie-break tuple.
type item struct {
	event       core.Event
	streamIndex int
}

func less(a, b item) bool {
	ea, eb := a.event, b.event
	if ea.Time() != eb.Time() {
		return ea.Time() < eb.Time()
	}

	ra, rb := ea.Received(), eb.Received()
	if ra != rb {
		// Missing (zero) received time sorts last.
		if ra == 0 {
			return false
		}
		if rb == 0 {
			return true
		}
		return ra < rb
	}

	pa, pb := core.TypePriority(ea), core.TypePriority(eb)
	if pa != pb {
		return pa < pb
	}

	ida, oka := core.TypeIdentifier(ea)
	idb, okb := core.TypeIdentifier(eb)
	if oka && okb && ida != idb {
		return ida < idb
	}

	return a.streamIndex < b.streamIndex
}

// itemHeap is a container/heap.Interface over buffered items, ordered by
// the deterministic tie-break.
type itemHeap []item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// Merger pulls one event at a time from N sources, buffering exactly one
// event per source and yielding the globally next one by the five-step
// tie-break. No intermediate materialization of the full stream occurs.
type Merger struct {
	sources []Source
	heap    itemHeap
}

// New returns a Merger over sources, in the given order (the order
// determines the final stream-index tie-break step).
func New(sources ...Source) *Merger {
	m := &Merger{sources: sources}
	heap.Init(&m.heap)
	for i, src := range sources {
		if e, ok := src.Next(); ok {
			heap.Push(&m.heap, item{event: e, streamIndex: i})
		}
	}
	return m
}

// Next returns the next event in merged order, or ok=false once every
// source is exhausted.
func (m *Merger) Next() (core.Event, bool) {
	if m.heap.Len() == 0 {
		return nil, false
	}
	top := heap.Pop(&m.heap).(item)
	if e, ok := m.sources[top.streamIndex].Next(); ok {
		heap.Push(&m.heap, item{event: e, streamIndex: top.streamIndex})
	}
	return top.event, true
}

// WindowSource wraps a Source with a [startMs, endMs) filter, discarding
// events outside the window before they ever reach the merge heap.
type WindowSource struct {
	inner           Source
	startMs, endMs  int64
	hasStart, hasEnd bool
}

// NewWindowSource returns a Source that only yields events with
// startMs <= event_time_ms < endMs. Pass hasStart/hasEnd false to leave
// that bound open.
func NewWindowSource(inner Source, startMs, endMs int64, hasStart, hasEnd bool) *WindowSource {
	return &WindowSource{inner: inner, startMs: startMs, endMs: endMs, hasStart: hasStart, hasEnd: hasEnd}
}

func (w *WindowSource) Next() (core.Event, bool) {
	for {
		e, ok := w.inner.Next()
		if !ok {
			return nil, false
		}
		t := e.Time()
		if w.hasStart && t < w.startMs {
			continue
		}
		if w.hasEnd && t >= w.endMs {
			continue
		}
		return e, true
	}
}

// Package core holds the backtest engine's data model: events, orders,
// fills and portfolio state. It has no dependencies on the rest of the
// engine.
package core

// Side represents the side of an order or the aggressor side of a trade.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Event is the sum type over the engine's six observable market events.
// Concrete types implement it; the engine and strategies discriminate with
// a type switch (`switch v := event.(type) { case DepthUpdate: ... }`)
// rather than a dynamically-typed tag+payload pair.
type Event interface {
	// Time returns the exchange clock time, the canonical engine clock.
	Time() int64
	// Received returns the local receipt time in nanoseconds, or 0 if absent.
	Received() int64
	eventMarker()
}

// PriceLevel is a single (price, qty) depth delta.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// DepthUpdate is a sparse delta to a symbol's L2 book. A Qty of 0 at a price
// removes that level.
type DepthUpdate struct {
	EventTimeMs       int64
	ReceivedTimeNs    int64 // 0 means absent; sorts last in tie-break.
	TransactionTimeMs int64
	Symbol            string
	FirstUpdateID     int64
	FinalUpdateID     int64
	PrevFinalUpdateID int64
	BidUpdates        []PriceLevel
	AskUpdates        []PriceLevel
}

func (d DepthUpdate) Time() int64     { return d.EventTimeMs }
func (d DepthUpdate) Received() int64 { return d.ReceivedTimeNs }
func (DepthUpdate) eventMarker()      {}

// Trade is a single executed trade from the public tape. IsBuyerMaker=true
// means the aggressor was a seller (a downtick).
type Trade struct {
	EventTimeMs    int64
	ReceivedTimeNs int64
	Symbol         string
	TradeID        int64
	Price          float64
	Quantity       float64
	IsBuyerMaker   bool
}

func (t Trade) Time() int64     { return t.EventTimeMs }
func (t Trade) Received() int64 { return t.ReceivedTimeNs }
func (Trade) eventMarker()      {}

// AggressorSide returns the side that removed liquidity for this trade.
func (t Trade) AggressorSide() Side {
	if t.IsBuyerMaker {
		return Sell
	}
	return Buy
}

// MarkPrice is a symbol's mark/index price and funding snapshot.
type MarkPrice struct {
	EventTimeMs       int64
	ReceivedTimeNs    int64
	Symbol            string
	MarkPriceValue    float64
	IndexPrice        float64
	FundingRate       float64
	NextFundingTimeMs int64
}

func (m MarkPrice) Time() int64     { return m.EventTimeMs }
func (m MarkPrice) Received() int64 { return m.ReceivedTimeNs }
func (MarkPrice) eventMarker()      {}

// Ticker is a symbol-keyed best-bid/ask/last snapshot latched into context
// on arrival.
type Ticker struct {
	EventTimeMs    int64
	ReceivedTimeNs int64
	Symbol         string
	BestBid        float64
	BestAsk        float64
	LastPrice      float64
}

func (t Ticker) Time() int64     { return t.EventTimeMs }
func (t Ticker) Received() int64 { return t.ReceivedTimeNs }
func (Ticker) eventMarker()      {}

// OpenInterest is a symbol-keyed open-interest snapshot.
type OpenInterest struct {
	EventTimeMs    int64
	ReceivedTimeNs int64
	Symbol         string
	Value          float64
}

func (o OpenInterest) Time() int64     { return o.EventTimeMs }
func (o OpenInterest) Received() int64 { return o.ReceivedTimeNs }
func (OpenInterest) eventMarker()      {}

// Liquidation is a symbol-keyed forced-liquidation snapshot.
type Liquidation struct {
	EventTimeMs    int64
	ReceivedTimeNs int64
	Symbol         string
	Side           Side
	Price          float64
	Quantity       float64
}

func (l Liquidation) Time() int64     { return l.EventTimeMs }
func (l Liquidation) Received() int64 { return l.ReceivedTimeNs }
func (Liquidation) eventMarker()      {}

// TypePriority orders events that share an event time, per the merge
// tie-break: Depth < Trade < Mark < Ticker < OI < Liq.
func TypePriority(e Event) int {
	switch e.(type) {
	case DepthUpdate:
		return 0
	case Trade:
		return 1
	case MarkPrice:
		return 2
	case Ticker:
		return 3
	case OpenInterest:
		return 4
	case Liquidation:
		return 5
	default:
		return 6
	}
}

// TypeIdentifier returns the type-specific tie-break identifier
// (final_update_id for depth, trade_id for trades). Other event types
// have no natural identifier and return ok=false.
func TypeIdentifier(e Event) (id int64, ok bool) {
	switch v := e.(type) {
	case DepthUpdate:
		return v.FinalUpdateID, true
	case Trade:
		return v.TradeID, true
	default:
		return 0, false
	}
}

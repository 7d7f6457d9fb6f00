package core

// Position is per-symbol net exposure and cost basis. Positions are
// created lazily on first fill or mark observation and live for the run.
type Position struct {
	Symbol        string
	NetQty        float64 // Signed: positive long, negative short.
	AvgEntryPrice float64
	LastMarkPrice float64
	HasMark       bool
}

// Portfolio owns realized PnL, fees and per-symbol positions. It is
// mutated only by fill application and funding events.
type Portfolio struct {
	RealizedPnlUsdt float64
	FeesPaidUsdt    float64
	Positions       map[string]*Position
}

// NewPortfolio returns an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{Positions: make(map[string]*Position)}
}

// position returns the position for symbol, creating it lazily.
func (p *Portfolio) position(symbol string) *Position {
	pos, ok := p.Positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.Positions[symbol] = pos
	}
	return pos
}

// ApplyFill updates the position, realized PnL and fees for one fill.
// Realized PnL changes only on the position-reducing portion of a fill.
func (p *Portfolio) ApplyFill(f Fill) {
	pos := p.position(f.Symbol)
	signedQty := f.Quantity
	if f.Side == Sell {
		signedQty = -signedQty
	}

	switch {
	case pos.NetQty == 0 || sameSign(pos.NetQty, signedQty):
		// Opening or adding to a position: blend the entry price.
		newQty := pos.NetQty + signedQty
		totalCost := pos.AvgEntryPrice*absf(pos.NetQty) + f.Price*absf(signedQty)
		if absf(newQty) > 0 {
			pos.AvgEntryPrice = totalCost / absf(newQty)
		}
		pos.NetQty = newQty
	default:
		// Reducing, flat, or flipping through zero.
		closingQty := minf(absf(signedQty), absf(pos.NetQty))
		pnlPerUnit := f.Price - pos.AvgEntryPrice
		if pos.NetQty < 0 {
			pnlPerUnit = pos.AvgEntryPrice - f.Price
		}
		p.RealizedPnlUsdt += pnlPerUnit * closingQty

		remaining := absf(signedQty) - closingQty
		newQty := pos.NetQty + signedQty
		pos.NetQty = newQty
		if remaining > 0 {
			// The fill flipped the position through zero; the remainder
			// opens a fresh position at the fill price.
			pos.AvgEntryPrice = f.Price
		} else if pos.NetQty == 0 {
			pos.AvgEntryPrice = 0
		}
	}

	p.FeesPaidUsdt += f.Fee
}

// ApplyFunding applies −net_qty·mark·funding_rate to realized PnL for the
// given symbol, creating the position lazily; its last mark price is left
// unchanged.
func (p *Portfolio) ApplyFunding(symbol string, markPrice, fundingRate float64) {
	pos := p.position(symbol)
	p.RealizedPnlUsdt += -pos.NetQty * markPrice * fundingRate
}

// LatchMark records markPrice as the symbol's last-known mark, creating
// the position lazily if this is the first observation of the symbol.
func (p *Portfolio) LatchMark(symbol string, markPrice float64) {
	pos := p.position(symbol)
	pos.LastMarkPrice = markPrice
	pos.HasMark = true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package strategy

import (
	"fmt"

	"backtestengine/internal/core"

	"github.com/google/uuid"
)

// CrossRule selects when MaCross changes its desired side.
type CrossRule string

const (
	// RuleCross trades only on a moving-average crossover.
	RuleCross CrossRule = "cross"
	// RuleState always targets the side implied by the current diff sign.
	RuleState CrossRule = "state"
)

// CrossMode restricts which sides MaCross may hold.
type CrossMode string

const (
	LongShort CrossMode = "long_short"
	LongOnly  CrossMode = "long_only"
)

// PriceSource selects which event stream feeds MaCross's bar builder.
type PriceSource string

const (
	SourceMark  PriceSource = "mark"
	SourceTrade PriceSource = "trade"
)

// MaCross is a moving-average crossover strategy: it builds fixed-width
// bars from either mark prices or trades, and targets a long or short
// position sized at Qty whenever the close crosses its trailing simple
// moving average.
type MaCross struct {
	Symbol          string
	Qty             float64
	TfMs            int64
	MaLen           int
	Rule            CrossRule
	Mode            CrossMode
	PriceSource     PriceSource
	FillMissingBars bool
	EpsQty          float64

	closes      []float64
	havePrevDiff bool
	prevDiff    float64

	EquityCurve []EquityPoint

	bars *BarBuilder
}

// EquityPoint is one sample of realized + unrealized PnL over time.
type EquityPoint struct {
	TimeMs int64
	Equity float64
}

// NewMaCross returns a MaCross with commonly-used defaults: 5m bars,
// 9-period MA, trade on cross, long/short, priced off mark.
func NewMaCross(symbol string, qty float64) *MaCross {
	return &MaCross{
		Symbol:      symbol,
		Qty:         qty,
		TfMs:        300_000,
		MaLen:       9,
		Rule:        RuleCross,
		Mode:        LongShort,
		PriceSource: SourceMark,
		EpsQty:      1e-12,
	}
}

var _ core.LifecycleStrategy = (*MaCross)(nil)
var _ core.EventStrategy = (*MaCross)(nil)

func (s *MaCross) OnStart(ctx *core.Context) {
	if s.Qty <= 0 {
		panic("strategy: MaCross.Qty must be > 0")
	}
	if s.MaLen <= 0 {
		panic("strategy: MaCross.MaLen must be > 0")
	}
	if s.EpsQty == 0 {
		s.EpsQty = 1e-12
	}
	s.bars = NewBarBuilder(s.TfMs, s.FillMissingBars)
}

func (s *MaCross) posQty(ctx *core.Context) float64 {
	pos, ok := ctx.Portfolio.Positions[s.Symbol]
	if !ok {
		return 0
	}
	return pos.NetQty
}

func (s *MaCross) bookReady(ctx *core.Context) bool {
	book, ok := ctx.Books[s.Symbol]
	if !ok {
		return false
	}
	_, bidOk := book.BestBid()
	_, askOk := book.BestAsk()
	return bidOk && askOk
}

func (s *MaCross) setTarget(ctx *core.Context, targetQty float64, reason string) {
	if !s.bookReady(ctx) {
		return
	}
	cur := s.posQty(ctx)
	delta := targetQty - cur
	if abs(delta) <= s.EpsQty {
		return
	}

	side := core.Buy
	if delta < 0 {
		side = core.Sell
	}
	order := core.Order{
		ID:          fmt.Sprintf("ma_%s_%d_%s", reason, ctx.NowMs, uuid.New().String()),
		Symbol:      s.Symbol,
		Side:        side,
		OrderType:   core.Market,
		Quantity:    abs(delta),
		TimeInForce: core.GTC,
	}
	ctx.Broker.Submit(order, ctx.NowMs)
}

func (s *MaCross) onClosedBar(b Bar, ctx *core.Context) {
	s.closes = append(s.closes, b.Close)
	if len(s.closes) < s.MaLen {
		return
	}

	window := s.closes[len(s.closes)-s.MaLen:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	ma := sum / float64(len(window))
	diff := b.Close - ma

	var desired string // "long", "short", "flat", or "" for no-op
	switch s.Rule {
	case RuleState:
		if diff >= 0 {
			desired = "long"
		} else {
			desired = "short"
		}
	default: // RuleCross
		if s.havePrevDiff {
			if s.prevDiff <= 0 && diff > 0 {
				desired = "long"
			} else if s.prevDiff >= 0 && diff < 0 {
				desired = "short"
			}
		}
	}
	s.havePrevDiff = true
	s.prevDiff = diff

	if desired == "" {
		return
	}
	if s.Mode == LongOnly && desired == "short" {
		desired = "flat"
	}

	switch desired {
	case "long":
		s.setTarget(ctx, s.Qty, "long")
	case "short":
		s.setTarget(ctx, -s.Qty, "short")
	case "flat":
		s.setTarget(ctx, 0, "flat")
	}
}

func (s *MaCross) OnEvent(event core.Event, ctx *core.Context) {
	if mark, ok := event.(core.MarkPrice); ok && mark.Symbol == s.Symbol {
		pos, havePos := ctx.Portfolio.Positions[s.Symbol]
		var unrealized float64
		if havePos && pos.NetQty != 0 {
			unrealized = pos.NetQty * (mark.MarkPriceValue - pos.AvgEntryPrice)
		}
		equity := ctx.Portfolio.RealizedPnlUsdt + unrealized
		s.EquityCurve = append(s.EquityCurve, EquityPoint{TimeMs: mark.EventTimeMs, Equity: equity})
	}

	if s.bars == nil {
		return
	}

	var tMs int64
	var price float64
	switch s.PriceSource {
	case SourceTrade:
		t, ok := event.(core.Trade)
		if !ok || t.Symbol != s.Symbol {
			return
		}
		tMs, price = t.EventTimeMs, t.Price
	default:
		m, ok := event.(core.MarkPrice)
		if !ok || m.Symbol != s.Symbol {
			return
		}
		tMs, price = m.EventTimeMs, m.MarkPriceValue
	}

	for _, b := range s.bars.OnPrice(tMs, price) {
		s.onClosedBar(b, ctx)
	}
}

func (s *MaCross) OnEnd(ctx *core.Context) {
	s.setTarget(ctx, 0, "end")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

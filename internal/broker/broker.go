// Package broker implements the simulated broker: taker fills against
// the L2 book with self-impact, maker fills via the queue-ahead model,
// and submit/cancel latency.
package broker

import (
	"container/heap"
	"math"

	"backtestengine/internal/core"
	"backtestengine/internal/errs"
	"backtestengine/internal/execution"
	"backtestengine/internal/logger"
	"backtestengine/internal/orderbook"
)

// PostOnlyBehavior controls whether a marketable post_only limit rejects
// or reprices. The default, Reject, is the conservative reading;
// Reprice is offered as a parameterized alternative: it moves a crossing
// order's price to the best price on its own side (best bid for a buy,
// best ask for a sell) and rejects when that side is empty.
type PostOnlyBehavior int

const (
	PostOnlyReject PostOnlyBehavior = iota
	PostOnlyReprice
)

type levelKey struct {
	symbol string
	side   core.Side
	price  int64 // Rounded to 1e-9 for deterministic map keys.
}

func priceKey(price float64) int64 {
	return int64(math.Round(price * 1e9))
}

type pendingSubmit struct {
	dueMs  int64
	seq    int64
	order  core.Order
	book   *orderbook.Book
}

type pendingCancel struct {
	dueMs   int64
	seq     int64
	orderID string
}

// SimBroker is the core's simulated broker. It holds pending
// submits, active maker orders, and the append-only fill list.
type SimBroker struct {
	cfg       Config
	portfolio *core.Portfolio
	log       *logger.Logger

	postOnlyBehavior PostOnlyBehavior

	fills []core.Fill

	makerOrders        map[string]*execution.MakerQueueOrder
	makerLevelIndex     map[levelKey][]string
	makerOrderLevelKey  map[string]levelKey
	makerSeq            int64

	pendingSubmits submitHeap
	pendingCancels cancelHeap
	seq            int64

	cancelSeqCutoff         map[string]int64
	cancelSeqCutoffBySymbol map[string]int64
}

// NewSimBroker returns a broker over cfg, recording fills and PnL into
// portfolio. A nil logger is replaced with a no-op logger.
func NewSimBroker(cfg Config, portfolio *core.Portfolio, log *logger.Logger) *SimBroker {
	if log == nil {
		log = logger.Nop()
	}
	return &SimBroker{
		cfg:                     cfg,
		portfolio:               portfolio,
		log:                     log,
		makerOrders:             make(map[string]*execution.MakerQueueOrder),
		makerLevelIndex:         make(map[levelKey][]string),
		makerOrderLevelKey:      make(map[string]levelKey),
		cancelSeqCutoff:         make(map[string]int64),
		cancelSeqCutoffBySymbol: make(map[string]int64),
	}
}

// SetPostOnlyBehavior configures how a marketable post_only limit is
// handled; the default is PostOnlyReject.
func (b *SimBroker) SetPostOnlyBehavior(behavior PostOnlyBehavior) {
	b.postOnlyBehavior = behavior
}

// Fills returns the append-only fill list.
func (b *SimBroker) Fills() []core.Fill { return b.fills }

// Submit schedules order for activation at now_ms + submit_latency_ms
// against book. Rejections (non-fatal kinds) are returned instead of
// activating the order.
func (b *SimBroker) Submit(order core.Order, book *orderbook.Book, nowMs int64) *core.Rejection {
	if book == nil {
		return reject(order.ID, errs.UnknownSymbol, "no book for symbol "+order.Symbol)
	}
	if order.Quantity <= 0 {
		return reject(order.ID, errs.InvalidOrder, "non-positive quantity")
	}
	if order.OrderType == core.Market && order.PostOnly {
		return reject(order.ID, errs.InvalidOrder, "market order cannot be post_only")
	}
	if order.OrderType == core.Limit && order.LimitPrice <= 0 {
		return reject(order.ID, errs.InvalidOrder, "limit order missing limit_price")
	}

	if b.cfg.SubmitLatencyMs > 0 {
		b.seq++
		heap.Push(&b.pendingSubmits, pendingSubmit{
			dueMs: nowMs + b.cfg.SubmitLatencyMs,
			seq:   b.seq,
			order: order,
			book:  book,
		})
		return nil
	}

	return b.activate(order, book, nowMs)
}

// Cancel schedules cancellation of order_id at now_ms + cancel_latency_ms.
// Idempotent: cancelling a non-existent id is a no-op success.
func (b *SimBroker) Cancel(orderID string, nowMs int64) {
	if b.cfg.CancelLatencyMs > 0 {
		b.seq++
		heap.Push(&b.pendingCancels, pendingCancel{dueMs: nowMs + b.cfg.CancelLatencyMs, seq: b.seq, orderID: orderID})
		return
	}
	b.cancelNow(orderID)
}

func (b *SimBroker) cancelNow(orderID string) {
	delete(b.makerOrders, orderID)
	b.removeFromLevelIndex(orderID)
	if b.seq > b.cancelSeqCutoff[orderID] {
		b.cancelSeqCutoff[orderID] = b.seq
	}
}

// CancelSymbolOrders bulk-cancels all active makers and lazily cancels
// pending submits for symbol (supplemental feature, grounded in the
// original's cancel_symbol_orders).
func (b *SimBroker) CancelSymbolOrders(symbol string, nowMs int64) {
	for orderID, mo := range b.makerOrders {
		if mo.Symbol == symbol {
			b.cancelNow(orderID)
		}
	}
	if b.seq > b.cancelSeqCutoffBySymbol[symbol] {
		b.cancelSeqCutoffBySymbol[symbol] = b.seq
	}
}

// OnTime activates due pending submits and executes due pending cancels,
// in scheduled-time order then insertion order. Cancels due at the same
// instant as a submit are treated as arriving first.
func (b *SimBroker) OnTime(nowMs int64) {
	for b.pendingCancels.Len() > 0 && b.pendingCancels[0].dueMs <= nowMs {
		pc := heap.Pop(&b.pendingCancels).(pendingCancel)
		b.cancelNow(pc.orderID)
	}
	for b.pendingSubmits.Len() > 0 && b.pendingSubmits[0].dueMs <= nowMs {
		ps := heap.Pop(&b.pendingSubmits).(pendingSubmit)
		cutoff := b.cancelSeqCutoff[ps.order.ID]
		cutoffSym := b.cancelSeqCutoffBySymbol[ps.order.Symbol]
		if ps.seq <= maxInt64(cutoff, cutoffSym) {
			continue // Lazily cancelled before activation.
		}
		b.activate(ps.order, ps.book, nowMs)
	}
}

// HasPendingOrders reports whether symbol (or, if empty, any symbol) has
// a pending submit not yet lazily cancelled.
func (b *SimBroker) HasPendingOrders(symbol string) bool {
	for _, ps := range b.pendingSubmits {
		if symbol != "" && ps.order.Symbol != symbol {
			continue
		}
		cutoff := b.cancelSeqCutoff[ps.order.ID]
		cutoffSym := b.cancelSeqCutoffBySymbol[ps.order.Symbol]
		if ps.seq > maxInt64(cutoff, cutoffSym) {
			return true
		}
	}
	return false
}

// HasOpenOrders reports whether symbol (or, if empty, any symbol) has an
// active maker order or a pending submit.
func (b *SimBroker) HasOpenOrders(symbol string) bool {
	for _, mo := range b.makerOrders {
		if symbol == "" || mo.Symbol == symbol {
			return true
		}
	}
	return b.HasPendingOrders(symbol)
}

// InvalidatePendingSubmits discards all not-yet-activated submits for
// symbol without touching active makers — the book guard's trip action.
func (b *SimBroker) InvalidatePendingSubmits(symbol string) {
	if b.seq > b.cancelSeqCutoffBySymbol[symbol] {
		b.cancelSeqCutoffBySymbol[symbol] = b.seq
	}
}

// RemoveMakersForSymbol discards all active maker orders for symbol
// without touching pending submits — used by the book guard's reset
// path, which invalidates pending submits separately via
// InvalidatePendingSubmits regardless of the reset configuration.
func (b *SimBroker) RemoveMakersForSymbol(symbol string) {
	for orderID, mo := range b.makerOrders {
		if mo.Symbol == symbol {
			delete(b.makerOrders, orderID)
			b.removeFromLevelIndex(orderID)
		}
	}
}

// OnDepthUpdate applies d to book, then refreshes resting maker orders'
// queue-ahead estimate from the now-current levels it touched — but only
// on the first observation since submission.
func (b *SimBroker) OnDepthUpdate(d core.DepthUpdate, book *orderbook.Book) {
	book.ApplyDepthUpdate(d)
	for _, lvl := range d.BidUpdates {
		b.refreshLevel(d.Symbol, core.Buy, lvl.Price, book)
	}
	for _, lvl := range d.AskUpdates {
		b.refreshLevel(d.Symbol, core.Sell, lvl.Price, book)
	}
}

func (b *SimBroker) refreshLevel(symbol string, side core.Side, price float64, book *orderbook.Book) {
	key := levelKey{symbol: symbol, side: side, price: priceKey(price)}
	for _, orderID := range b.makerLevelIndex[key] {
		if mo, ok := b.makerOrders[orderID]; ok {
			mo.RefreshFromBook(book.QtyAt(side, price))
		}
	}
}

// OnTrade ages resting maker orders at trade's price against the
// aggressor side, splitting the trade's budget among same-level orders
// in priority order.
func (b *SimBroker) OnTrade(trade core.Trade, nowMs int64) {
	makerSide := core.Sell
	if trade.IsBuyerMaker {
		makerSide = core.Buy
	}
	key := levelKey{symbol: trade.Symbol, side: makerSide, price: priceKey(trade.Price)}
	bucket := b.makerLevelIndex[key]
	if len(bucket) == 0 {
		return
	}

	remaining := trade.Quantity
	active := make([]string, 0, len(bucket))
	for _, orderID := range bucket {
		mo, ok := b.makerOrders[orderID]
		if !ok {
			continue
		}
		if remaining > 0 {
			fillQty, consumed := mo.OnTradeBudgeted(trade, remaining, true)
			if consumed > 0 {
				remaining -= consumed
				if remaining < 0 {
					remaining = 0
				}
			}
			if fillQty > 0 {
				fee := fillQty * trade.Price * b.cfg.MakerFeeFrac
				b.recordFill(core.Fill{
					OrderID:     orderID,
					Symbol:      mo.Symbol,
					Side:        mo.Side,
					Price:       trade.Price,
					Quantity:    fillQty,
					Fee:         fee,
					Liquidity:   core.Maker,
					EventTimeMs: nowMs,
				})
			}
		}
		if mo.IsFilled() {
			delete(b.makerOrders, orderID)
			delete(b.makerOrderLevelKey, orderID)
			continue
		}
		active = append(active, orderID)
	}
	if len(active) > 0 {
		b.makerLevelIndex[key] = active
	} else {
		delete(b.makerLevelIndex, key)
	}
}

// activate performs on-time activation for one order: immediate taker
// fill for market/marketable limits, maker-queue entry otherwise.
func (b *SimBroker) activate(order core.Order, book *orderbook.Book, nowMs int64) *core.Rejection {
	if order.ReduceOnly && !b.reducesPosition(order) {
		return reject(order.ID, errs.InvalidOrder, "reduce_only order would increase absolute position")
	}

	if order.OrderType == core.Market {
		_, rej := b.fillTaker(order, book, nowMs, 0, false, order.TimeInForce == core.FOK)
		return rej
	}

	limitPx := order.LimitPrice
	bestBid, okBid := book.BestBid()
	bestAsk, okAsk := book.BestAsk()
	crosses := false
	if order.Side == core.Buy {
		crosses = okAsk && limitPx >= bestAsk
	} else {
		crosses = okBid && limitPx <= bestBid
	}

	if order.PostOnly {
		if crosses && b.postOnlyBehavior == PostOnlyReject {
			return reject(order.ID, errs.InvalidOrder, "post_only order would cross the spread")
		}
		if crosses {
			// Reprice to the best price on the order's own side.
			if order.Side == core.Buy && okBid {
				order.LimitPrice = bestBid
			} else if order.Side == core.Sell && okAsk {
				order.LimitPrice = bestAsk
			} else {
				return reject(order.ID, errs.InvalidOrder, "post_only order would cross and its own side is empty")
			}
		}
		b.openMaker(order, book)
		return nil
	}

	if order.TimeInForce == core.IOC {
		_, rej := b.fillTaker(order, book, nowMs, limitPx, true, false)
		return rej
	}

	if order.TimeInForce == core.FOK {
		filled, rej := b.fillTaker(order, book, nowMs, limitPx, true, true)
		_ = filled
		return rej
	}

	// GTC, not post_only: cross immediately as taker, rest the remainder.
	if crosses {
		filledQty, rej := b.fillTaker(order, book, nowMs, limitPx, true, false)
		if rej != nil {
			return rej
		}
		remaining := order.Quantity - filledQty
		if remaining > 1e-12 {
			rest := order
			rest.Quantity = remaining
			b.openMaker(rest, book)
		}
		return nil
	}

	b.openMaker(order, book)
	return nil
}

// reducesPosition reports whether order, if fully filled, would not
// increase the absolute magnitude of its symbol's current position.
func (b *SimBroker) reducesPosition(order core.Order) bool {
	pos, ok := b.portfolio.Positions[order.Symbol]
	var netQty float64
	if ok {
		netQty = pos.NetQty
	}
	signedQty := order.Quantity
	if order.Side == core.Sell {
		signedQty = -signedQty
	}
	projected := netQty + signedQty
	return absf(projected) <= absf(netQty)+1e-12
}

// fillTaker executes a taker fill for order against book, applying the
// optional slippage overlay, fees, and the FOK full-fill-or-nothing rule.
// Returns the filled quantity and any rejection.
func (b *SimBroker) fillTaker(order core.Order, book *orderbook.Book, nowMs int64, limitPrice float64, hasLimit, fok bool) (float64, *core.Rejection) {
	preBid, _ := book.BestBid()
	preAsk, _ := book.BestAsk()

	if fok {
		dry := book.Clone()
		_, dryFilled := execution.ConsumeTakerFill(dry, order.Side, order.Quantity, limitPrice, hasLimit)
		if dryFilled+1e-9 < order.Quantity {
			return 0, reject(order.ID, errs.InsufficientLiquidity, "fill-or-kill order could not fully fill")
		}
	}

	avgPx, filledQty := execution.ConsumeTakerFill(book, order.Side, order.Quantity, limitPrice, hasLimit)
	if filledQty <= 0 || math.IsNaN(avgPx) {
		return 0, nil
	}

	execPx := b.applyTakerSlippage(order.Side, avgPx, preBid, preAsk, limitPrice, hasLimit)
	fee := filledQty * execPx * b.cfg.TakerFeeFrac
	b.recordFill(core.Fill{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Price:       execPx,
		Quantity:    filledQty,
		Fee:         fee,
		Liquidity:   core.Taker,
		EventTimeMs: nowMs,
	})
	return filledQty, nil
}

// applyTakerSlippage applies the conservative additive overlay from
// Config, clamped so a buy never executes above its limit and a sell
// never below it.
func (b *SimBroker) applyTakerSlippage(side core.Side, rawExecPrice, bestBid, bestAsk, limitPrice float64, hasLimit bool) float64 {
	if rawExecPrice <= 0 {
		return rawExecPrice
	}
	spread := 0.0
	if bestAsk >= bestBid && bestBid > 0 && bestAsk > 0 {
		spread = bestAsk - bestBid
	}
	slippage := b.cfg.TakerSlippageAbs + rawExecPrice*b.cfg.TakerSlippageBps/10000 + spread*b.cfg.TakerSlippageSpreadFrac
	if slippage <= 0 {
		return rawExecPrice
	}

	out := rawExecPrice
	if side == core.Buy {
		out = rawExecPrice + slippage
	} else {
		out = rawExecPrice - slippage
		if out < 0 {
			out = 0
		}
	}
	if hasLimit {
		if side == core.Buy && out > limitPrice {
			out = limitPrice
		}
		if side == core.Sell && out < limitPrice {
			out = limitPrice
		}
	}
	return out
}

// openMaker enters order into the maker queue model, seeding
// queue_ahead_qty from the currently visible quantity at its price.
func (b *SimBroker) openMaker(order core.Order, book *orderbook.Book) {
	qAhead := book.QtyAt(order.Side, order.LimitPrice)
	qAhead = qAhead*b.cfg.MakerQueueAheadFactor + b.cfg.MakerQueueAheadExtraQty

	participation := b.cfg.MakerTradeParticipation
	if participation <= 0 {
		participation = 1
	}

	mo := &execution.MakerQueueOrder{
		OrderID:            order.ID,
		Symbol:             order.Symbol,
		Side:               order.Side,
		Price:              order.LimitPrice,
		Quantity:           order.Quantity,
		ReduceOnly:         order.ReduceOnly,
		QueueAheadQty:      qAhead,
		TradeParticipation: participation,
		PrioritySeq:        b.makerSeq,
	}
	b.makerSeq++
	b.makerOrders[order.ID] = mo

	key := levelKey{symbol: order.Symbol, side: order.Side, price: priceKey(order.LimitPrice)}
	b.makerLevelIndex[key] = append(b.makerLevelIndex[key], order.ID)
	b.makerOrderLevelKey[order.ID] = key
}

func (b *SimBroker) removeFromLevelIndex(orderID string) {
	key, ok := b.makerOrderLevelKey[orderID]
	if !ok {
		return
	}
	delete(b.makerOrderLevelKey, orderID)
	bucket := b.makerLevelIndex[key]
	out := bucket[:0]
	for _, id := range bucket {
		if id != orderID {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		b.makerLevelIndex[key] = out
	} else {
		delete(b.makerLevelIndex, key)
	}
}

func (b *SimBroker) recordFill(f core.Fill) {
	b.fills = append(b.fills, f)
	b.portfolio.ApplyFill(f)
}

func reject(orderID string, kind errs.Kind, reason string) *core.Rejection {
	return &core.Rejection{OrderID: orderID, Kind: string(kind), Reason: reason}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

package adapter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"backtestengine/internal/core"
	"backtestengine/internal/logger"
)

// BinanceAdapter streams live Binance USD-M futures events over a
// BaseWSClient connection and exposes them as a merge.Source, so a live
// run drives the same engine loop as a historical replay.
type BinanceAdapter struct {
	*BaseWSClient
	log    *logger.Logger
	stream chan core.Event
	next   core.Event
}

// NewBinanceAdapter dials the futures combined-stream endpoint. Call
// Subscribe with the desired symbols, then Start to begin the read pump.
func NewBinanceAdapter(log *logger.Logger) *BinanceAdapter {
	if log == nil {
		log = logger.Nop()
	}
	url := "wss://fstream.binance.com/ws"
	client := NewBaseWSClient("binance", url, log)

	return &BinanceAdapter{
		BaseWSClient: client,
		log:          log,
		stream:       make(chan core.Event, 65536),
	}
}

// Subscribe sends a SUBSCRIBE frame for each symbol's aggTrade, diff-depth
// and forceOrder (liquidation) streams.
func (b *BinanceAdapter) Subscribe(symbols []string) error {
	params := make([]string, 0, len(symbols)*3)
	for _, s := range symbols {
		s = strings.ToLower(s)
		params = append(params, s+"@aggTrade")
		params = append(params, s+"@depth@100ms")
		params = append(params, s+"@forceOrder")
	}

	payload := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().UnixNano(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.SendChan <- data
	return nil
}

// Start launches the parse pump that drains BaseWSClient.ReadChan into
// the adapter's internal event channel. Call once after Subscribe.
func (b *BinanceAdapter) Start() {
	go func() {
		for raw := range b.ReadChan {
			event, err := b.parse(raw)
			if err != nil {
				b.log.Warn("binance adapter parse error", logger.F("error", err))
				continue
			}
			if event == nil {
				continue
			}
			select {
			case b.stream <- event:
			default:
				b.log.Warn("binance adapter stream buffer full, dropping event")
			}
		}
		close(b.stream)
	}()
}

// Next implements merge.Source by pulling the next parsed event off the
// adapter's buffered channel, blocking until one is available or the
// underlying connection closes.
func (b *BinanceAdapter) Next() (core.Event, bool) {
	event, ok := <-b.stream
	return event, ok
}

type binanceAggTrade struct {
	EventType   string `json:"e"`
	EventTimeMs int64  `json:"E"`
	Symbol      string `json:"s"`
	Price       string `json:"p"`
	Quantity    string `json:"q"`
	TradeID     int64  `json:"a"`
	IsBuyerMaker bool  `json:"m"`
}

type binanceDepthUpdate struct {
	EventType        string          `json:"e"`
	EventTimeMs      int64           `json:"E"`
	TransactionTimeMs int64          `json:"T"`
	Symbol           string          `json:"s"`
	FirstUpdateID    int64           `json:"U"`
	FinalUpdateID    int64           `json:"u"`
	PrevFinalUpdateID int64          `json:"pu"`
	Bids             [][2]string     `json:"b"`
	Asks             [][2]string     `json:"a"`
}

type binanceForceOrder struct {
	Order struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		OrderTradeMs int64  `json:"T"`
	} `json:"o"`
}

func (b *BinanceAdapter) parse(raw []byte) (core.Event, error) {
	// Both "e" and "E" keys need their own field: encoding/json matches
	// keys case-insensitively when no exact field exists.
	var head struct {
		Event       string `json:"e"`
		EventTimeMs int64  `json:"E"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	receivedAt := time.Now().UnixNano()

	switch head.Event {
	case "aggTrade":
		var t binanceAggTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		price, _ := strconv.ParseFloat(t.Price, 64)
		qty, _ := strconv.ParseFloat(t.Quantity, 64)
		return core.Trade{
			EventTimeMs:    t.EventTimeMs,
			ReceivedTimeNs: receivedAt,
			Symbol:         t.Symbol,
			TradeID:        t.TradeID,
			Price:          price,
			Quantity:       qty,
			IsBuyerMaker:   t.IsBuyerMaker,
		}, nil

	case "depthUpdate":
		var d binanceDepthUpdate
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return core.DepthUpdate{
			EventTimeMs:       d.EventTimeMs,
			ReceivedTimeNs:    receivedAt,
			TransactionTimeMs: d.TransactionTimeMs,
			Symbol:            d.Symbol,
			FirstUpdateID:     d.FirstUpdateID,
			FinalUpdateID:     d.FinalUpdateID,
			PrevFinalUpdateID: d.PrevFinalUpdateID,
			BidUpdates:        parseLevels(d.Bids),
			AskUpdates:        parseLevels(d.Asks),
		}, nil

	case "forceOrder":
		var f binanceForceOrder
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		price, _ := strconv.ParseFloat(f.Order.Price, 64)
		qty, _ := strconv.ParseFloat(f.Order.Quantity, 64)
		side := core.Buy
		if f.Order.Side == "SELL" {
			side = core.Sell
		}
		return core.Liquidation{
			EventTimeMs:    f.Order.OrderTradeMs,
			ReceivedTimeNs: receivedAt,
			Symbol:         f.Order.Symbol,
			Side:           side,
			Price:          price,
			Quantity:       qty,
		}, nil

	default:
		return nil, nil
	}
}

func parseLevels(raw [][2]string) []core.PriceLevel {
	out := make([]core.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, _ := strconv.ParseFloat(pair[0], 64)
		qty, _ := strconv.ParseFloat(pair[1], 64)
		out = append(out, core.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

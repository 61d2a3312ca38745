package bybit

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/ws"

	"go.uber.org/zap"
)

// PingFrame is the heartbeat payload the public stream expects.
var PingFrame = map[string]any{"op": "ping"}

// Stream consumes the public linear topics for one symbol and keeps a
// delta-merged order book. Snapshots are pushed to the registered
// callbacks; the stream never blocks on them.
type Stream struct {
	ws       *ws.Client
	symbol   string
	interval string
	depth    int
	log      *zap.Logger

	mu         sync.Mutex
	bids       map[string]float64
	asks       map[string]float64
	lastTicker exchange.Ticker

	onTicker func(exchange.Ticker)
	onBook   func(exchange.OrderBook)
	onCandle func(exchange.Candle)
}

func NewStream(wsClient *ws.Client, symbol, candleInterval string, depth int, log *zap.Logger) *Stream {
	if depth <= 0 {
		depth = 50
	}
	return &Stream{
		ws:       wsClient,
		symbol:   symbol,
		interval: klineInterval(candleInterval),
		depth:    depth,
		log:      log,
		bids:     make(map[string]float64),
		asks:     make(map[string]float64),
	}
}

func (s *Stream) OnTicker(fn func(exchange.Ticker))  { s.onTicker = fn }
func (s *Stream) OnBook(fn func(exchange.OrderBook)) { s.onBook = fn }
func (s *Stream) OnCandle(fn func(exchange.Candle))  { s.onCandle = fn }

// Reconnects reports how often the underlying socket redialed.
func (s *Stream) Reconnects() int { return s.ws.Reconnects() }

func (s *Stream) Start(ctx context.Context) error {
	if err := s.ws.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"op": "subscribe",
		"args": []string{
			"orderbook." + strconv.Itoa(s.depth) + "." + s.symbol,
			"tickers." + s.symbol,
			"kline." + s.interval + "." + s.symbol,
		},
	}
	if err := s.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		_ = s.ws.Run(ctx, s.handleMessage)
	}()
	return nil
}

func (s *Stream) handleMessage(msg json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		s.log.Debug("ws decode error", zap.Error(err))
		return
	}
	topic := stringFromMap(payload, "topic")
	switch {
	case hasPrefix(topic, "orderbook."):
		s.handleBook(payload)
	case hasPrefix(topic, "tickers."):
		s.handleTicker(payload)
	case hasPrefix(topic, "kline."):
		s.handleKline(payload)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (s *Stream) handleBook(payload map[string]any) {
	data := toMap(payload["data"])
	if data == nil {
		return
	}
	ts := time.UnixMilli(int64FromMap(payload, "ts"))
	s.mu.Lock()
	if stringFromMap(payload, "type") == "snapshot" {
		s.bids = make(map[string]float64)
		s.asks = make(map[string]float64)
	}
	applyLevels(s.bids, sliceFromMap(data, "b"))
	applyLevels(s.asks, sliceFromMap(data, "a"))
	book := exchange.OrderBook{
		Symbol: s.symbol,
		Bids:   sortedLevels(s.bids, true),
		Asks:   sortedLevels(s.asks, false),
		Time:   ts,
	}
	s.mu.Unlock()
	if s.onBook != nil && len(book.Bids) > 0 && len(book.Asks) > 0 {
		s.onBook(book)
	}
}

// applyLevels merges delta rows into the level map. A zero quantity
// removes the level.
func applyLevels(levels map[string]float64, rows []any) {
	for _, item := range rows {
		row := toSlice(item)
		if len(row) < 2 {
			continue
		}
		price, _ := row[0].(string)
		if price == "" {
			continue
		}
		qty := floatFromAny(row[1])
		if qty == 0 {
			delete(levels, price)
			continue
		}
		levels[price] = qty
	}
}

func sortedLevels(levels map[string]float64, desc bool) []exchange.BookLevel {
	out := make([]exchange.BookLevel, 0, len(levels))
	for price, qty := range levels {
		f, err := strconv.ParseFloat(price, 64)
		if err != nil {
			continue
		}
		out = append(out, exchange.BookLevel{Price: f, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// handleTicker merges partial updates into the last known ticker; the
// linear tickers topic only carries changed fields after the first
// snapshot.
func (s *Stream) handleTicker(payload map[string]any) {
	data := toMap(payload["data"])
	if data == nil {
		return
	}
	s.mu.Lock()
	t := s.lastTicker
	t.Symbol = s.symbol
	if v := floatFromMap(data, "bid1Price"); v > 0 {
		t.Bid = v
	}
	if v := floatFromMap(data, "ask1Price"); v > 0 {
		t.Ask = v
	}
	if v := floatFromMap(data, "lastPrice"); v > 0 {
		t.Last = v
	}
	if v := floatFromMap(data, "markPrice"); v > 0 {
		t.MarkPrice = v
	}
	t.Time = time.UnixMilli(int64FromMap(payload, "ts"))
	s.lastTicker = t
	s.mu.Unlock()
	if s.onTicker != nil {
		s.onTicker(t)
	}
}

// handleKline forwards confirmed candles only; unconfirmed rows repeat
// every tick while the bar is still forming.
func (s *Stream) handleKline(payload map[string]any) {
	rows := sliceFromMap(payload, "data")
	for _, item := range rows {
		row := toMap(item)
		if row == nil {
			continue
		}
		confirmed, _ := row["confirm"].(bool)
		if !confirmed {
			continue
		}
		candle := exchange.Candle{
			Time:   time.UnixMilli(int64FromMap(row, "start")),
			Open:   floatFromMap(row, "open"),
			High:   floatFromMap(row, "high"),
			Low:    floatFromMap(row, "low"),
			Close:  floatFromMap(row, "close"),
			Volume: floatFromMap(row, "volume"),
		}
		if s.onCandle != nil {
			s.onCandle(candle)
		}
	}
}

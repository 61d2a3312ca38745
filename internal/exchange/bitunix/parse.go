package bitunix

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

func parseTicker(data any, symbol string) (exchange.Ticker, error) {
	for _, item := range toSlice(data) {
		row := toMap(item)
		if row == nil || stringFromMap(row, "symbol") != symbol {
			continue
		}
		return exchange.Ticker{
			Symbol:    symbol,
			Last:      floatFromMap(row, "lastPrice"),
			MarkPrice: floatFromMap(row, "markPrice"),
			Time:      time.Now(),
		}, nil
	}
	return exchange.Ticker{}, fmt.Errorf("ticker for %s missing from response", symbol)
}

func parseOrderBook(data any, symbol string) (exchange.OrderBook, error) {
	m := toMap(data)
	book := exchange.OrderBook{
		Symbol: symbol,
		Bids:   parseLevels(sliceFromMap(m, "bids")),
		Asks:   parseLevels(sliceFromMap(m, "asks")),
		Time:   time.Now(),
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return exchange.OrderBook{}, fmt.Errorf("order book for %s is empty", symbol)
	}
	return book, nil
}

func parseLevels(rows []any) []exchange.BookLevel {
	levels := make([]exchange.BookLevel, 0, len(rows))
	for _, item := range rows {
		row := toSlice(item)
		if len(row) < 2 {
			continue
		}
		levels = append(levels, exchange.BookLevel{
			Price: floatFromAny(row[0]),
			Qty:   floatFromAny(row[1]),
		})
	}
	return levels
}

func parseCandles(data any) ([]exchange.Candle, error) {
	rows := toSlice(data)
	candles := make([]exchange.Candle, 0, len(rows))
	for _, item := range rows {
		row := toMap(item)
		if row == nil {
			continue
		}
		candles = append(candles, exchange.Candle{
			Time:   time.UnixMilli(int64FromMap(row, "time")),
			Open:   floatFromMap(row, "open"),
			High:   floatFromMap(row, "high"),
			Low:    floatFromMap(row, "low"),
			Close:  floatFromMap(row, "close"),
			Volume: floatFromMap(row, "baseVol"),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("kline response contained no rows")
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func parseBalance(data any) (exchange.Balance, error) {
	account := toMap(data)
	if account == nil {
		rows := toSlice(data)
		if len(rows) == 0 {
			return exchange.Balance{}, fmt.Errorf("account response is empty")
		}
		account = toMap(rows[0])
	}
	available := floatFromMap(account, "available")
	margin := floatFromMap(account, "margin")
	upnl := floatFromMap(account, "crossUnrealizedPNL")
	return exchange.Balance{
		Asset:         marginCoin,
		Total:         available + margin + upnl,
		Free:          available,
		UnrealizedPnL: upnl,
	}, nil
}

func parsePositions(data any) []exchange.Position {
	rows := toSlice(data)
	positions := make([]exchange.Position, 0, len(rows))
	for _, item := range rows {
		row := toMap(item)
		if row == nil {
			continue
		}
		qty := floatFromMap(row, "qty")
		if qty == 0 {
			continue
		}
		positions = append(positions, exchange.Position{
			Symbol:        stringFromMap(row, "symbol"),
			Side:          sideFromWire(stringFromMap(row, "side")),
			Qty:           qty,
			EntryPrice:    floatFromMap(row, "avgOpenPrice"),
			UnrealizedPnL: floatFromMap(row, "unrealizedPNL"),
			LiqPrice:      floatFromMap(row, "liqPrice"),
			Margin:        floatFromMap(row, "margin"),
			Leverage:      floatFromMap(row, "leverage"),
		})
	}
	return positions
}

func parseOrders(data any) []exchange.Order {
	rows := sliceFromMap(toMap(data), "orderList")
	orders := make([]exchange.Order, 0, len(rows))
	for _, item := range rows {
		row := toMap(item)
		if row == nil {
			continue
		}
		orders = append(orders, exchange.Order{
			ID:       stringFromMap(row, "orderId"),
			ClientID: stringFromMap(row, "clientId"),
			Symbol:   stringFromMap(row, "symbol"),
			Side:     sideFromWire(stringFromMap(row, "side")),
			Price:    floatFromMap(row, "price"),
			Qty:      floatFromMap(row, "qty"),
			Filled:   floatFromMap(row, "tradeQty"),
			Status:   statusFromWire(stringFromMap(row, "status")),
			Created:  time.UnixMilli(int64FromMap(row, "ctime")),
		})
	}
	return orders
}

func parseFills(data any) []exchange.Fill {
	rows := sliceFromMap(toMap(data), "tradeList")
	fills := make([]exchange.Fill, 0, len(rows))
	for _, item := range rows {
		row := toMap(item)
		if row == nil {
			continue
		}
		fills = append(fills, exchange.Fill{
			TradeID: stringFromMap(row, "tradeId"),
			OrderID: stringFromMap(row, "orderId"),
			Symbol:  stringFromMap(row, "symbol"),
			Side:    sideFromWire(stringFromMap(row, "side")),
			Qty:     floatFromMap(row, "qty"),
			Price:   floatFromMap(row, "price"),
			Fee:     floatFromMap(row, "fee"),
			Time:    time.UnixMilli(int64FromMap(row, "ctime")),
		})
	}
	return fills
}

func sideFromWire(side string) string {
	if side == "SELL" {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func statusFromWire(status string) string {
	switch status {
	case "INIT", "NEW":
		return exchange.StatusNew
	case "PART_FILLED":
		return exchange.StatusPartiallyFilled
	case "FILLED":
		return exchange.StatusFilled
	case "CANCELED", "EXPIRED":
		return exchange.StatusCanceled
	default:
		return status
	}
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func sliceFromMap(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	return toSlice(m[key])
}

func stringFromMap(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func floatFromMap(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	return floatFromAny(m[key])
}

func floatFromAny(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func int64FromMap(m map[string]any, key string) int64 {
	if m == nil {
		return 0
	}
	switch val := m[key].(type) {
	case float64:
		return int64(val)
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

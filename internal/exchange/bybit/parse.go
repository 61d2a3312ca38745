package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

func parseTicker(result map[string]any, symbol string) (exchange.Ticker, error) {
	list := sliceFromMap(result, "list")
	for _, item := range list {
		row := toMap(item)
		if row == nil || stringFromMap(row, "symbol") != symbol {
			continue
		}
		return exchange.Ticker{
			Symbol:    symbol,
			Bid:       floatFromMap(row, "bid1Price"),
			Ask:       floatFromMap(row, "ask1Price"),
			Last:      floatFromMap(row, "lastPrice"),
			MarkPrice: floatFromMap(row, "markPrice"),
			Time:      time.Now(),
		}, nil
	}
	return exchange.Ticker{}, fmt.Errorf("ticker for %s missing from response", symbol)
}

func parseOrderBook(result map[string]any, symbol string) (exchange.OrderBook, error) {
	book := exchange.OrderBook{
		Symbol: symbol,
		Bids:   parseLevels(sliceFromMap(result, "b")),
		Asks:   parseLevels(sliceFromMap(result, "a")),
		Time:   time.UnixMilli(int64FromMap(result, "ts")),
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

// parseCandles reverses the venue's newest-first kline rows into
// ascending time order.
func parseCandles(result map[string]any) ([]exchange.Candle, error) {
	list := sliceFromMap(result, "list")
	candles := make([]exchange.Candle, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		row := toSlice(list[i])
		if len(row) < 6 {
			continue
		}
		candles = append(candles, exchange.Candle{
			Time:   time.UnixMilli(int64FromAny(row[0])),
			Open:   floatFromAny(row[1]),
			High:   floatFromAny(row[2]),
			Low:    floatFromAny(row[3]),
			Close:  floatFromAny(row[4]),
			Volume: floatFromAny(row[5]),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("kline response contained no rows")
	}
	return candles, nil
}

func parseBalance(result map[string]any) (exchange.Balance, error) {
	list := sliceFromMap(result, "list")
	if len(list) == 0 {
		return exchange.Balance{}, fmt.Errorf("wallet balance response is empty")
	}
	account := toMap(list[0])
	return exchange.Balance{
		Asset:         "USDT",
		Total:         floatFromMap(account, "totalEquity"),
		Free:          floatFromMap(account, "totalAvailableBalance"),
		UnrealizedPnL: floatFromMap(account, "totalPerpUPL"),
	}, nil
}

func parsePositions(result map[string]any) []exchange.Position {
	list := sliceFromMap(result, "list")
	positions := make([]exchange.Position, 0, len(list))
	for _, item := range list {
		row := toMap(item)
		if row == nil {
			continue
		}
		qty := floatFromMap(row, "size")
		if qty == 0 {
			continue
		}
		positions = append(positions, exchange.Position{
			Symbol:        stringFromMap(row, "symbol"),
			Side:          sideFromWire(stringFromMap(row, "side")),
			Qty:           qty,
			EntryPrice:    floatFromMap(row, "avgPrice"),
			MarkPrice:     floatFromMap(row, "markPrice"),
			UnrealizedPnL: floatFromMap(row, "unrealisedPnl"),
			LiqPrice:      floatFromMap(row, "liqPrice"),
			Margin:        floatFromMap(row, "positionIM"),
			Leverage:      floatFromMap(row, "leverage"),
		})
	}
	return positions
}

func parseOrders(result map[string]any) []exchange.Order {
	list := sliceFromMap(result, "list")
	orders := make([]exchange.Order, 0, len(list))
	for _, item := range list {
		row := toMap(item)
		if row == nil {
			continue
		}
		orders = append(orders, exchange.Order{
			ID:       stringFromMap(row, "orderId"),
			ClientID: stringFromMap(row, "orderLinkId"),
			Symbol:   stringFromMap(row, "symbol"),
			Side:     sideFromWire(stringFromMap(row, "side")),
			Price:    floatFromMap(row, "price"),
			Qty:      floatFromMap(row, "qty"),
			Filled:   floatFromMap(row, "cumExecQty"),
			Status:   statusFromWire(stringFromMap(row, "orderStatus")),
			Created:  time.UnixMilli(int64FromMap(row, "createdTime")),
		})
	}
	return orders
}

func parseFills(result map[string]any) []exchange.Fill {
	list := sliceFromMap(result, "list")
	fills := make([]exchange.Fill, 0, len(list))
	for _, item := range list {
		row := toMap(item)
		if row == nil {
			continue
		}
		fills = append(fills, exchange.Fill{
			TradeID: stringFromMap(row, "execId"),
			OrderID: stringFromMap(row, "orderId"),
			Symbol:  stringFromMap(row, "symbol"),
			Side:    sideFromWire(stringFromMap(row, "side")),
			Qty:     floatFromMap(row, "execQty"),
			Price:   floatFromMap(row, "execPrice"),
			Fee:     floatFromMap(row, "execFee"),
			Time:    time.UnixMilli(int64FromMap(row, "execTime")),
		})
	}
	return fills
}

func sideFromWire(side string) string {
	if side == "Sell" {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func statusFromWire(status string) string {
	switch status {
	case "New", "Untriggered":
		return exchange.StatusNew
	case "PartiallyFilled":
		return exchange.StatusPartiallyFilled
	case "Filled":
		return exchange.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return exchange.StatusCanceled
	case "Rejected":
		return exchange.StatusRejected
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
	return int64FromAny(m[key])
}

func int64FromAny(v any) int64 {
	switch val := v.(type) {
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

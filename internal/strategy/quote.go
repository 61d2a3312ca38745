package strategy

import (
	"errors"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/book"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/signal"
)

// size multipliers applied when the position or the model leans one way
const (
	skewGrow   = 1.2
	skewShrink = 0.8
	biasGrow   = 1.3
	biasShrink = 0.7
	// a confident signal widens the spread up to 50%
	signalWiden = 0.5
)

// QuoteParams is the market context one quoting cycle works from.
// SpreadPct is the optimal spread before signal widening, as a
// percentage of mid.
type QuoteParams struct {
	Symbol      string
	Mid         float64
	SpreadPct   float64
	Signal      signal.Read
	PositionUSD float64
}

// BuildQuotes lays out the post-only ladder for one cycle: NumOrders
// price levels per side, sized from BaseOrderUSD and then skewed away
// from inventory and toward the model's lean. Levels that round below
// the venue's minimum amount or notional are dropped.
func BuildQuotes(cfg config.StrategyConfig, p QuoteParams) ([]exchange.OrderRequest, error) {
	if p.Mid <= 0 {
		return nil, errors.New("mid price unavailable")
	}
	if p.SpreadPct <= 0 {
		return nil, errors.New("spread unavailable")
	}

	spread := p.SpreadPct
	if p.Signal.Signal != signal.Neutral {
		spread *= 1 + signalWiden*p.Signal.Confidence
	}
	buyLevels, sellLevels := book.PriceLevels(p.Mid, spread, cfg.NumOrders)

	buyUSD := clamp(cfg.BaseOrderUSD, cfg.MinOrderUSD, cfg.MaxOrderUSD)
	sellUSD := buyUSD
	switch {
	case p.PositionUSD > cfg.SkewThresholdUSD:
		buyUSD *= skewShrink
		sellUSD *= skewGrow
	case p.PositionUSD < -cfg.SkewThresholdUSD:
		buyUSD *= skewGrow
		sellUSD *= skewShrink
	}
	switch p.Signal.Signal {
	case signal.Bullish:
		buyUSD *= biasGrow
		sellUSD *= biasShrink
	case signal.Bearish:
		buyUSD *= biasShrink
		sellUSD *= biasGrow
	}
	buyUSD = clamp(buyUSD, cfg.MinOrderUSD, cfg.MaxOrderUSD)
	sellUSD = clamp(sellUSD, cfg.MinOrderUSD, cfg.MaxOrderUSD)

	var quotes []exchange.OrderRequest
	for _, price := range buyLevels {
		if q, ok := makeQuote(cfg, p.Symbol, exchange.SideBuy, price, buyUSD); ok {
			quotes = append(quotes, q)
		}
	}
	for _, price := range sellLevels {
		if q, ok := makeQuote(cfg, p.Symbol, exchange.SideSell, price, sellUSD); ok {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

func makeQuote(cfg config.StrategyConfig, symbol, side string, price, usd float64) (exchange.OrderRequest, bool) {
	price = exchange.RoundTo(price, cfg.PricePrecision)
	if price <= 0 {
		return exchange.OrderRequest{}, false
	}
	qty := exchange.RoundDown(usd/price, cfg.AmountPrecision)
	if qty < cfg.MinAmount || qty*price < cfg.MinNotionalUSD {
		return exchange.OrderRequest{}, false
	}
	return exchange.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        exchange.TypeLimit,
		Qty:         qty,
		Price:       price,
		TimeInForce: exchange.TifPostOnly,
	}, true
}

func clamp(v, lo, hi float64) float64 {
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

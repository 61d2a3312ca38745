package book

import (
	"errors"
	"fmt"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

// directionalThreshold is the imbalance percentage beyond which one
// side is considered in control.
const directionalThreshold = 20.0

type Metrics struct {
	BestBid   float64
	BestAsk   float64
	Mid       float64
	Spread    float64
	SpreadPct float64
}

// SpreadMetrics reads top of book. One-sided and crossed books are
// rejected rather than quoted against.
func SpreadMetrics(b exchange.OrderBook) (Metrics, error) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return Metrics{}, errors.New("order book is one-sided or empty")
	}
	bestBid := b.Bids[0].Price
	bestAsk := b.Asks[0].Price
	if bestBid <= 0 || bestAsk <= 0 {
		return Metrics{}, errors.New("order book has non-positive prices")
	}
	if bestBid >= bestAsk {
		return Metrics{}, fmt.Errorf("order book is crossed: bid %v >= ask %v", bestBid, bestAsk)
	}
	spread := bestAsk - bestBid
	return Metrics{
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Mid:       (bestBid + bestAsk) / 2,
		Spread:    spread,
		SpreadPct: spread / bestBid * 100,
	}, nil
}

// OptimalSpread targets a fraction of the observed spread, widening
// the fraction with volatility. The multiplier is capped at 0.9 so
// quotes always sit inside the market, and the result is clamped to
// the configured band. Volatility is the stddev of close returns.
func OptimalSpread(m Metrics, volatility, minPct, maxPct, multiplier float64) float64 {
	if m.SpreadPct == 0 {
		return minPct
	}
	mult := multiplier + volatility*0.2
	if mult > 0.9 {
		mult = 0.9
	}
	target := m.SpreadPct * mult
	if target < minPct {
		target = minPct
	}
	if target > maxPct {
		target = maxPct
	}
	return target
}

// PriceLevels spreads n orders per side away from mid. Level i sits
// at (i+0.5)/n of the spread, so the first order is closest to mid
// and the last near the full target distance.
func PriceLevels(mid, spreadPct float64, n int) (buys, sells []float64) {
	if mid <= 0 || n <= 0 {
		return nil, nil
	}
	spreadDecimal := spreadPct / 100
	buys = make([]float64, 0, n)
	sells = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		step := (float64(i) + 0.5) / float64(n)
		buys = append(buys, mid*(1-spreadDecimal*step))
		sells = append(sells, mid*(1+spreadDecimal*step))
	}
	return buys, sells
}

type Imbalance struct {
	Ratio       float64
	Pct         float64
	BidValueUSD float64
	AskValueUSD float64
}

// Direction is +1 when bids dominate, -1 when asks dominate, 0 when
// the book is balanced within the threshold.
func (im Imbalance) Direction() int {
	switch {
	case im.Pct > directionalThreshold:
		return 1
	case im.Pct < -directionalThreshold:
		return -1
	default:
		return 0
	}
}

// AnalyzeImbalance weighs notional value across the top depth levels.
// Ratio is bid share of total value; Pct rescales it to [-100, 100].
func AnalyzeImbalance(b exchange.OrderBook, depth int) Imbalance {
	if depth <= 0 {
		depth = 10
	}
	bidValue := levelValue(b.Bids, depth)
	askValue := levelValue(b.Asks, depth)
	total := bidValue + askValue
	if total == 0 {
		return Imbalance{Ratio: 0.5}
	}
	ratio := bidValue / total
	return Imbalance{
		Ratio:       ratio,
		Pct:         (ratio - 0.5) * 200,
		BidValueUSD: bidValue,
		AskValueUSD: askValue,
	}
}

func levelValue(levels []exchange.BookLevel, depth int) float64 {
	if depth > len(levels) {
		depth = len(levels)
	}
	var total float64
	for _, l := range levels[:depth] {
		total += l.Price * l.Qty
	}
	return total
}

// DepthPressure compares raw size across the top levels: positive
// means buy pressure, negative sell pressure, in [-1, 1].
func DepthPressure(b exchange.OrderBook, levels int) float64 {
	if levels <= 0 {
		levels = 5
	}
	bidSize := levelSize(b.Bids, levels)
	askSize := levelSize(b.Asks, levels)
	total := bidSize + askSize
	if total == 0 {
		return 0
	}
	return (bidSize - askSize) / total
}

func levelSize(levels []exchange.BookLevel, depth int) float64 {
	if depth > len(levels) {
		depth = len(levels)
	}
	var total float64
	for _, l := range levels[:depth] {
		total += l.Qty
	}
	return total
}

// LiquidityNear sums resting notional within tolerancePct of price on
// one side of the book.
func LiquidityNear(b exchange.OrderBook, price float64, side string, tolerancePct float64) float64 {
	if price <= 0 {
		return 0
	}
	levels := b.Bids
	if side == exchange.SideSell {
		levels = b.Asks
	}
	var total float64
	for _, l := range levels {
		diffPct := (l.Price - price) / price
		if diffPct < 0 {
			diffPct = -diffPct
		}
		if diffPct <= tolerancePct/100 {
			total += l.Price * l.Qty
		}
	}
	return total
}

package book

import (
	"math"
	"testing"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

func sampleBook() exchange.OrderBook {
	return exchange.OrderBook{
		Symbol: "SOLUSDT",
		Bids: []exchange.BookLevel{
			{Price: 142.00, Qty: 10},
			{Price: 141.90, Qty: 20},
			{Price: 141.80, Qty: 30},
		},
		Asks: []exchange.BookLevel{
			{Price: 142.20, Qty: 8},
			{Price: 142.30, Qty: 16},
			{Price: 142.40, Qty: 24},
		},
	}
}

func TestSpreadMetrics(t *testing.T) {
	m, err := SpreadMetrics(sampleBook())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.BestBid != 142.00 || m.BestAsk != 142.20 {
		t.Fatalf("unexpected top of book: %+v", m)
	}
	if math.Abs(m.Mid-142.10) > 1e-9 {
		t.Fatalf("expected mid 142.10, got %v", m.Mid)
	}
	wantPct := 0.20 / 142.00 * 100
	if math.Abs(m.SpreadPct-wantPct) > 1e-9 {
		t.Fatalf("expected spread pct %v, got %v", wantPct, m.SpreadPct)
	}
}

func TestSpreadMetricsRejectsCrossedBook(t *testing.T) {
	b := sampleBook()
	b.Bids[0].Price = 142.30
	if _, err := SpreadMetrics(b); err == nil {
		t.Fatalf("expected crossed book rejection")
	}
}

func TestSpreadMetricsRejectsOneSidedBook(t *testing.T) {
	b := sampleBook()
	b.Asks = nil
	if _, err := SpreadMetrics(b); err == nil {
		t.Fatalf("expected one-sided book rejection")
	}
}

func TestOptimalSpreadBaseMultiplier(t *testing.T) {
	m := Metrics{SpreadPct: 0.30}
	got := OptimalSpread(m, 0, 0.12, 0.20, 0.6)
	if math.Abs(got-0.18) > 1e-9 {
		t.Fatalf("expected 0.18, got %v", got)
	}
}

func TestOptimalSpreadVolatilityWidens(t *testing.T) {
	m := Metrics{SpreadPct: 0.30}
	base := OptimalSpread(m, 0, 0.10, 0.50, 0.6)
	wider := OptimalSpread(m, 0.5, 0.10, 0.50, 0.6)
	if wider <= base {
		t.Fatalf("expected volatility to widen spread: base %v wider %v", base, wider)
	}
	// 0.6 + 0.5*0.2 = 0.7
	if math.Abs(wider-0.30*0.7) > 1e-9 {
		t.Fatalf("expected 0.21, got %v", wider)
	}
}

func TestOptimalSpreadMultiplierCapped(t *testing.T) {
	m := Metrics{SpreadPct: 0.40}
	got := OptimalSpread(m, 10, 0.10, 1.0, 0.6)
	if math.Abs(got-0.40*0.9) > 1e-9 {
		t.Fatalf("expected multiplier capped at 0.9, got %v", got)
	}
}

func TestOptimalSpreadClamped(t *testing.T) {
	m := Metrics{SpreadPct: 1.0}
	if got := OptimalSpread(m, 0, 0.12, 0.20, 0.6); got != 0.20 {
		t.Fatalf("expected clamp to max, got %v", got)
	}
	m.SpreadPct = 0.05
	if got := OptimalSpread(m, 0, 0.12, 0.20, 0.6); got != 0.12 {
		t.Fatalf("expected clamp to min, got %v", got)
	}
	m.SpreadPct = 0
	if got := OptimalSpread(m, 0, 0.12, 0.20, 0.6); got != 0.12 {
		t.Fatalf("expected min on zero spread, got %v", got)
	}
}

func TestPriceLevelsStepAndOrder(t *testing.T) {
	buys, sells := PriceLevels(100, 0.2, 4)
	if len(buys) != 4 || len(sells) != 4 {
		t.Fatalf("expected 4 per side, got %d/%d", len(buys), len(sells))
	}
	// First level at (0+0.5)/4 of the 0.2% spread.
	want := 100 * (1 - 0.002*0.125)
	if math.Abs(buys[0]-want) > 1e-9 {
		t.Fatalf("expected first buy %v, got %v", want, buys[0])
	}
	for i := 1; i < 4; i++ {
		if buys[i] >= buys[i-1] {
			t.Fatalf("buys not stepping away from mid: %v", buys)
		}
		if sells[i] <= sells[i-1] {
			t.Fatalf("sells not stepping away from mid: %v", sells)
		}
	}
	if buys[3] >= 100 || sells[0] <= 100 {
		t.Fatalf("levels straddle mid incorrectly: %v %v", buys, sells)
	}
}

func TestPriceLevelsDegenerateInputs(t *testing.T) {
	if buys, sells := PriceLevels(0, 0.2, 4); buys != nil || sells != nil {
		t.Fatalf("expected nil levels for zero mid")
	}
	if buys, _ := PriceLevels(100, 0.2, 0); buys != nil {
		t.Fatalf("expected nil levels for zero count")
	}
}

func TestAnalyzeImbalance(t *testing.T) {
	im := AnalyzeImbalance(sampleBook(), 10)
	wantBid := 142.00*10 + 141.90*20 + 141.80*30
	wantAsk := 142.20*8 + 142.30*16 + 142.40*24
	if math.Abs(im.BidValueUSD-wantBid) > 1e-6 || math.Abs(im.AskValueUSD-wantAsk) > 1e-6 {
		t.Fatalf("unexpected depth values: %+v", im)
	}
	wantRatio := wantBid / (wantBid + wantAsk)
	if math.Abs(im.Ratio-wantRatio) > 1e-9 {
		t.Fatalf("expected ratio %v, got %v", wantRatio, im.Ratio)
	}
	if math.Abs(im.Pct-(wantRatio-0.5)*200) > 1e-9 {
		t.Fatalf("expected pct %v, got %v", (wantRatio-0.5)*200, im.Pct)
	}
}

func TestImbalanceDirection(t *testing.T) {
	if d := (Imbalance{Pct: 25}).Direction(); d != 1 {
		t.Fatalf("expected bullish direction, got %d", d)
	}
	if d := (Imbalance{Pct: -25}).Direction(); d != -1 {
		t.Fatalf("expected bearish direction, got %d", d)
	}
	if d := (Imbalance{Pct: 10}).Direction(); d != 0 {
		t.Fatalf("expected neutral direction, got %d", d)
	}
}

func TestImbalanceEmptyBook(t *testing.T) {
	im := AnalyzeImbalance(exchange.OrderBook{}, 10)
	if im.Ratio != 0.5 || im.Pct != 0 {
		t.Fatalf("expected balanced default, got %+v", im)
	}
}

func TestDepthPressure(t *testing.T) {
	p := DepthPressure(sampleBook(), 5)
	bid := 10.0 + 20.0 + 30.0
	ask := 8.0 + 16.0 + 24.0
	want := (bid - ask) / (bid + ask)
	if math.Abs(p-want) > 1e-9 {
		t.Fatalf("expected pressure %v, got %v", want, p)
	}
	if got := DepthPressure(exchange.OrderBook{}, 5); got != 0 {
		t.Fatalf("expected zero pressure for empty book, got %v", got)
	}
}

func TestLiquidityNear(t *testing.T) {
	b := sampleBook()
	// 0.1% of 142 is ~0.142, so only the top two bids qualify.
	got := LiquidityNear(b, 142.00, exchange.SideBuy, 0.1)
	want := 142.00*10 + 141.90*20
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected liquidity %v, got %v", want, got)
	}
	if got := LiquidityNear(b, 0, exchange.SideBuy, 0.1); got != 0 {
		t.Fatalf("expected zero for zero price, got %v", got)
	}
}

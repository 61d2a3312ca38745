package position

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

// fakeVenue implements exchange.Client with canned positions and a
// record of placed orders.
type fakeVenue struct {
	positions []exchange.Position
	placed    []exchange.OrderRequest
	canceled  bool
	afterFill func(req exchange.OrderRequest)
}

func (f *fakeVenue) Name() string { return "fake" }

func (f *fakeVenue) Ticker(context.Context) (exchange.Ticker, error) {
	return exchange.Ticker{}, nil
}

func (f *fakeVenue) OrderBook(context.Context, int) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, nil
}

func (f *fakeVenue) Candles(context.Context, string, int) ([]exchange.Candle, error) {
	return nil, nil
}

func (f *fakeVenue) Balance(context.Context) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}

func (f *fakeVenue) Positions(context.Context) ([]exchange.Position, error) {
	return f.positions, nil
}

func (f *fakeVenue) OpenOrders(context.Context) ([]exchange.Order, error) { return nil, nil }

func (f *fakeVenue) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	f.placed = append(f.placed, req)
	if f.afterFill != nil {
		f.afterFill(req)
	}
	return exchange.Order{ID: "1", Status: exchange.StatusFilled}, nil
}

func (f *fakeVenue) CancelOrder(context.Context, string) error { return nil }

func (f *fakeVenue) CancelAll(context.Context) error {
	f.canceled = true
	return nil
}

func (f *fakeVenue) Fills(context.Context, time.Time, int) ([]exchange.Fill, error) {
	return nil, nil
}

func (f *fakeVenue) SetLeverage(context.Context, int) error { return nil }
func (f *fakeVenue) SetPositionMode(context.Context) error  { return nil }

func riskCfg() config.RiskConfig {
	return config.RiskConfig{
		Leverage:              5,
		RebalanceThresholdUSD: 200,
		RebalanceFraction:     0.9,
		MaintenanceMarginPct:  0.5,
	}
}

func longPosition(qty, entry, mark, liq float64) exchange.Position {
	return exchange.Position{
		Symbol:     "SOLUSDT",
		Side:       exchange.SideBuy,
		Qty:        qty,
		EntryPrice: entry,
		MarkPrice:  mark,
		LiqPrice:   liq,
		Leverage:   5,
	}
}

func TestRefreshFlatPosition(t *testing.T) {
	venue := &fakeVenue{}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	snap, err := mgr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Qty != 0 || snap.Risk != RiskNone {
		t.Fatalf("flat snapshot = %+v", snap)
	}
	if mgr.NeedsRebalance() {
		t.Fatal("flat position should not need rebalance")
	}
}

func TestLiquidationBands(t *testing.T) {
	cases := []struct {
		liq  float64
		want RiskLevel
	}{
		{96, RiskCritical}, // 4% away
		{92, RiskHigh},     // 8% away
		{85, RiskMedium},   // 15% away
		{70, RiskNone},     // 30% away
	}
	for _, c := range cases {
		venue := &fakeVenue{positions: []exchange.Position{longPosition(1, 100, 100, c.liq)}}
		mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
		snap, err := mgr.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if snap.Risk != c.want {
			t.Fatalf("liq %v: risk = %v, want %v", c.liq, snap.Risk, c.want)
		}
	}
}

func TestEstimatedLiqPriceWhenVenueOmitsIt(t *testing.T) {
	venue := &fakeVenue{positions: []exchange.Position{longPosition(1, 100, 100, 0)}}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	snap, err := mgr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// entry * (1 - 1/5 + 0.005) = 80.5, 19.5% away
	if snap.Risk != RiskMedium {
		t.Fatalf("risk = %v, want %v (dist %v)", snap.Risk, RiskMedium, snap.LiqDistance)
	}
}

func TestNeedsRebalanceOverThreshold(t *testing.T) {
	venue := &fakeVenue{positions: []exchange.Position{longPosition(3, 100, 100, 70)}}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	if _, err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !mgr.NeedsRebalance() {
		t.Fatal("300 USD position over a 200 USD threshold should need rebalance")
	}
}

func TestRebalancePlacesReduceOnlyMarket(t *testing.T) {
	venue := &fakeVenue{positions: []exchange.Position{longPosition(10, 100, 100, 70)}}
	venue.afterFill = func(exchange.OrderRequest) {
		venue.positions = []exchange.Position{longPosition(1, 100, 100, 70)}
	}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	if _, err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := mgr.Rebalance(context.Background(), 2, 0.1); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if len(venue.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(venue.placed))
	}
	req := venue.placed[0]
	if req.Side != exchange.SideSell || req.Type != exchange.TypeMarket || !req.ReduceOnly {
		t.Fatalf("unexpected order %+v", req)
	}
	if math.Abs(req.Qty-9) > 1e-9 {
		t.Fatalf("qty = %v, want 9", req.Qty)
	}
}

func TestRebalanceSkipsDustPosition(t *testing.T) {
	venue := &fakeVenue{positions: []exchange.Position{longPosition(0.05, 100, 100, 70)}}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	if _, err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := mgr.Rebalance(context.Background(), 2, 0.1); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if len(venue.placed) != 0 {
		t.Fatalf("dust position placed %d orders", len(venue.placed))
	}
}

func TestEmergencyCloseAll(t *testing.T) {
	short := longPosition(4, 100, 100, 0)
	short.Side = exchange.SideSell
	short.LiqPrice = 120
	venue := &fakeVenue{positions: []exchange.Position{short}}
	mgr := NewManager(venue, riskCfg(), "SOLUSDT", zap.NewNop())
	if err := mgr.EmergencyCloseAll(context.Background(), 2); err != nil {
		t.Fatalf("EmergencyCloseAll: %v", err)
	}
	if !venue.canceled {
		t.Fatal("expected CancelAll before closing")
	}
	if len(venue.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(venue.placed))
	}
	req := venue.placed[0]
	if req.Side != exchange.SideBuy || req.Qty != 4 || !req.ReduceOnly {
		t.Fatalf("unexpected close order %+v", req)
	}
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

// mockVenue implements exchange.Client with scripted open orders and
// call counting.
type mockVenue struct {
	mu         sync.Mutex
	open       []exchange.Order
	placeCalls int
	placeErrs  int
	canceled   []string
	cancelAll  bool
	nextID     int
}

func (m *mockVenue) Name() string { return "mock" }

func (m *mockVenue) Ticker(context.Context) (exchange.Ticker, error) {
	return exchange.Ticker{}, nil
}

func (m *mockVenue) OrderBook(context.Context, int) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, nil
}

func (m *mockVenue) Candles(context.Context, string, int) ([]exchange.Candle, error) {
	return nil, nil
}

func (m *mockVenue) Balance(context.Context) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}

func (m *mockVenue) Positions(context.Context) ([]exchange.Position, error) { return nil, nil }

func (m *mockVenue) OpenOrders(context.Context) ([]exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]exchange.Order(nil), m.open...), nil
}

func (m *mockVenue) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeCalls++
	if m.placeErrs > 0 {
		m.placeErrs--
		return exchange.Order{}, errors.New("venue busy")
	}
	m.nextID++
	return exchange.Order{
		ID:       fmt.Sprintf("oid-%d", m.nextID),
		ClientID: req.ClientID,
		Side:     req.Side,
		Price:    req.Price,
		Qty:      req.Qty,
		Status:   exchange.StatusNew,
	}, nil
}

func (m *mockVenue) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, orderID)
	return nil
}

func (m *mockVenue) CancelAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelAll = true
	m.open = nil
	return nil
}

func (m *mockVenue) Fills(context.Context, time.Time, int) ([]exchange.Fill, error) {
	return nil, nil
}

func (m *mockVenue) SetLeverage(context.Context, int) error { return nil }
func (m *mockVenue) SetPositionMode(context.Context) error  { return nil }

func TestPlaceIdempotent(t *testing.T) {
	store := newMemoryStore()
	venue := &mockVenue{}
	exec := NewExecutor(venue, store, zap.NewNop())
	ctx := context.Background()

	req := exchange.OrderRequest{
		Symbol: "SOLUSDT", Side: exchange.SideBuy, Qty: 1, Price: 100, ClientID: "abc",
	}
	o1, err := exec.Place(ctx, req)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	o2, err := exec.Place(ctx, req)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o1.ID != o2.ID {
		t.Fatalf("ids differ: %s vs %s", o1.ID, o2.ID)
	}
	if venue.placeCalls != 1 {
		t.Fatalf("venue called %d times, want 1", venue.placeCalls)
	}

	// restart: a fresh executor over the same store still skips the venue
	venue2 := &mockVenue{}
	exec2 := NewExecutor(venue2, store, zap.NewNop())
	o3, err := exec2.Place(ctx, req)
	if err != nil {
		t.Fatalf("Place after restart: %v", err)
	}
	if o3.ID != o1.ID {
		t.Fatalf("restart returned %s, want %s", o3.ID, o1.ID)
	}
	if venue2.placeCalls != 0 {
		t.Fatalf("venue called %d times after restart, want 0", venue2.placeCalls)
	}
}

func TestPlaceAssignsClientID(t *testing.T) {
	exec := NewExecutor(&mockVenue{}, newMemoryStore(), zap.NewNop())
	o, err := exec.Place(context.Background(), exchange.OrderRequest{
		Symbol: "SOLUSDT", Side: exchange.SideBuy, Qty: 1, Price: 100,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o.ClientID == "" {
		t.Fatal("expected generated client id")
	}
}

func TestPlaceRetriesTransientErrors(t *testing.T) {
	venue := &mockVenue{placeErrs: 2}
	exec := NewExecutor(venue, newMemoryStore(), zap.NewNop())
	o, err := exec.Place(context.Background(), exchange.OrderRequest{
		Symbol: "SOLUSDT", Side: exchange.SideSell, Qty: 1, Price: 100, ClientID: "r1",
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o.ID == "" {
		t.Fatal("expected order id after retries")
	}
	if venue.placeCalls != 3 {
		t.Fatalf("venue called %d times, want 3", venue.placeCalls)
	}
}

func reconcileCfg() config.StrategyConfig {
	return config.StrategyConfig{
		PriceTolerancePct: 0.1,
		BatchSize:         5,
	}
}

func TestReconcileKeepsOrdersWithinTolerance(t *testing.T) {
	venue := &mockVenue{open: []exchange.Order{
		{ID: "keep", Side: exchange.SideBuy, Price: 99.95, Qty: 1},
		{ID: "stale", Side: exchange.SideBuy, Price: 98.00, Qty: 1},
	}}
	exec := NewExecutor(venue, newMemoryStore(), zap.NewNop())
	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1, ClientID: "a"},
		{Symbol: "SOLUSDT", Side: exchange.SideSell, Price: 101, Qty: 1, ClientID: "b"},
	}
	res, err := exec.Reconcile(context.Background(), desired, reconcileCfg(), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 1 || res.Canceled != 1 || res.Placed != 1 {
		t.Fatalf("result = %+v, want kept 1 / canceled 1 / placed 1", res)
	}
	if len(venue.canceled) != 1 || venue.canceled[0] != "stale" {
		t.Fatalf("canceled %v, want [stale]", venue.canceled)
	}
}

func TestReconcileOneDesiredClaimsOneOpen(t *testing.T) {
	// two open buys inside tolerance of a single desired level: one
	// is kept, the duplicate is canceled
	venue := &mockVenue{open: []exchange.Order{
		{ID: "dup1", Side: exchange.SideBuy, Price: 99.96, Qty: 1},
		{ID: "dup2", Side: exchange.SideBuy, Price: 99.97, Qty: 1},
	}}
	exec := NewExecutor(venue, newMemoryStore(), zap.NewNop())
	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1, ClientID: "a"},
	}
	res, err := exec.Reconcile(context.Background(), desired, reconcileCfg(), 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 1 || res.Canceled != 1 || res.Placed != 0 {
		t.Fatalf("result = %+v, want kept 1 / canceled 1 / placed 0", res)
	}
}

func TestReconcileCrowdControl(t *testing.T) {
	venue := &mockVenue{}
	for i := 0; i < 9; i++ {
		venue.open = append(venue.open, exchange.Order{
			ID: fmt.Sprintf("o%d", i), Side: exchange.SideBuy, Price: 100, Qty: 1,
		})
	}
	exec := NewExecutor(venue, newMemoryStore(), zap.NewNop())
	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1, ClientID: "a"},
		{Symbol: "SOLUSDT", Side: exchange.SideSell, Price: 101, Qty: 1, ClientID: "b"},
	}
	res, err := exec.Reconcile(context.Background(), desired, reconcileCfg(), 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !res.CrowdSkipped {
		t.Fatal("expected crowd skip with 9 open vs 2 desired")
	}
	if !venue.cancelAll {
		t.Fatal("expected cancel-all sweep")
	}
	if res.Placed != 0 {
		t.Fatalf("crowd skip placed %d orders", res.Placed)
	}
}

func TestCancelAllResting(t *testing.T) {
	venue := &mockVenue{open: []exchange.Order{
		{ID: "a", Side: exchange.SideBuy, Price: 100, Qty: 1, ClientID: "ca"},
		{ID: "b", Side: exchange.SideSell, Price: 101, Qty: 1, ClientID: "cb"},
	}}
	store := newMemoryStore()
	store.data["cloid:ca"] = "a"
	store.data["cloid:cb"] = "b"
	exec := NewExecutor(venue, store, zap.NewNop())
	n, err := exec.CancelAllResting(context.Background())
	if err != nil {
		t.Fatalf("CancelAllResting: %v", err)
	}
	if n != 2 || !venue.cancelAll {
		t.Fatalf("swept %d orders, cancelAll=%v", n, venue.cancelAll)
	}
	if _, ok, _ := store.Get(context.Background(), "cloid:ca"); ok {
		t.Fatal("swept order key still in store")
	}
}

func TestReconcileAssignsDeterministicClientIDs(t *testing.T) {
	store := newMemoryStore()
	exec := NewExecutor(&mockVenue{}, store, zap.NewNop())
	ctx := context.Background()

	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1},
		{Symbol: "SOLUSDT", Side: exchange.SideSell, Price: 101, Qty: 1},
	}
	if _, err := exec.Reconcile(ctx, desired, reconcileCfg(), 0); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	wantBuy := fmt.Sprintf("q-0-%s-0", exchange.SideBuy)
	wantSell := fmt.Sprintf("q-0-%s-1", exchange.SideSell)
	if desired[0].ClientID != wantBuy || desired[1].ClientID != wantSell {
		t.Fatalf("client ids = %q / %q, want %q / %q",
			desired[0].ClientID, desired[1].ClientID, wantBuy, wantSell)
	}
	if val, ok, _ := store.Get(ctx, "orders:cycle"); !ok || val != "1" {
		t.Fatalf("cycle in store = %q (ok=%v), want 1", val, ok)
	}

	// next pass moves to the next cycle's ids
	desired2 := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1},
	}
	if _, err := exec.Reconcile(ctx, desired2, reconcileCfg(), 0); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if want := fmt.Sprintf("q-1-%s-0", exchange.SideBuy); desired2[0].ClientID != want {
		t.Fatalf("second pass client id = %q, want %q", desired2[0].ClientID, want)
	}
}

func TestReconcileResumesCycleFromStore(t *testing.T) {
	store := newMemoryStore()
	store.data["orders:cycle"] = "7"
	exec := NewExecutor(&mockVenue{}, store, zap.NewNop())
	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1},
	}
	if _, err := exec.Reconcile(context.Background(), desired, reconcileCfg(), 0); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if want := fmt.Sprintf("q-7-%s-0", exchange.SideBuy); desired[0].ClientID != want {
		t.Fatalf("client id = %q, want %q", desired[0].ClientID, want)
	}
}

func TestReconcileReleasesCanceledOrderKeys(t *testing.T) {
	venue := &mockVenue{open: []exchange.Order{
		{ID: "stale", ClientID: "old", Side: exchange.SideBuy, Price: 90, Qty: 1},
	}}
	store := newMemoryStore()
	store.data["cloid:old"] = "stale"
	exec := NewExecutor(venue, store, zap.NewNop())
	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1},
	}
	res, err := exec.Reconcile(context.Background(), desired, reconcileCfg(), 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Canceled != 1 {
		t.Fatalf("canceled %d, want 1", res.Canceled)
	}
	if _, ok, _ := store.Get(context.Background(), "cloid:old"); ok {
		t.Fatal("canceled order key still in store")
	}
}

func TestReconcileReleasesFilledOrderKeys(t *testing.T) {
	venue := &mockVenue{}
	store := newMemoryStore()
	exec := NewExecutor(venue, store, zap.NewNop())
	ctx := context.Background()

	desired := []exchange.OrderRequest{
		{Symbol: "SOLUSDT", Side: exchange.SideBuy, Price: 100, Qty: 1},
	}
	if _, err := exec.Reconcile(ctx, desired, reconcileCfg(), 0); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	key := "cloid:" + desired[0].ClientID
	if _, ok, _ := store.Get(ctx, key); !ok {
		t.Fatalf("placed order key %q missing from store", key)
	}

	// the order filled: it no longer rests, so the next pass releases it
	if _, err := exec.Reconcile(ctx, nil, reconcileCfg(), 0); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Fatal("filled order key still in store")
	}
}

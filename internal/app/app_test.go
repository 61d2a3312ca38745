package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/alerts"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/metrics"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/orders"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/pnl"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/position"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/signal"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/strategy"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memStore) Close() error { return nil }

type stubVenue struct {
	mu        sync.Mutex
	positions []exchange.Position
	open      []exchange.Order
	placed    []exchange.OrderRequest
	canceled  bool
	nextID    int
}

func (v *stubVenue) Name() string { return "stub" }

func (v *stubVenue) Ticker(context.Context) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: "SOLUSDT", Bid: 99.9, Ask: 100.1, Last: 100}, nil
}

func (v *stubVenue) OrderBook(context.Context, int) (exchange.OrderBook, error) {
	return exchange.OrderBook{
		Symbol: "SOLUSDT",
		Bids:   []exchange.BookLevel{{Price: 99.9, Qty: 10}},
		Asks:   []exchange.BookLevel{{Price: 100.1, Qty: 10}},
		Time:   time.Now(),
	}, nil
}

func (v *stubVenue) Candles(context.Context, string, int) ([]exchange.Candle, error) {
	return nil, nil
}

func (v *stubVenue) Balance(context.Context) (exchange.Balance, error) {
	return exchange.Balance{Asset: "USDT", Free: 1000, Total: 1000}, nil
}

func (v *stubVenue) Positions(context.Context) ([]exchange.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]exchange.Position(nil), v.positions...), nil
}

func (v *stubVenue) OpenOrders(context.Context) ([]exchange.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]exchange.Order(nil), v.open...), nil
}

func (v *stubVenue) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placed = append(v.placed, req)
	v.nextID++
	return exchange.Order{ID: "o-" + string(rune('a'+v.nextID)), ClientID: req.ClientID}, nil
}

func (v *stubVenue) CancelOrder(context.Context, string) error { return nil }

func (v *stubVenue) CancelAll(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.canceled = true
	v.open = nil
	return nil
}

func (v *stubVenue) Fills(context.Context, time.Time, int) ([]exchange.Fill, error) {
	return nil, nil
}

func (v *stubVenue) SetLeverage(context.Context, int) error { return nil }
func (v *stubVenue) SetPositionMode(context.Context) error  { return nil }

func newTestApp(t *testing.T, venue *stubVenue) *App {
	t.Helper()
	log := zap.NewNop()
	store := newMemStore()
	cfg := &config.Config{}
	cfg.Exchange.Symbol = "SOLUSDT"
	cfg.Strategy.AmountPrecision = 2
	cfg.Strategy.OrderRefreshInterval = 3 * time.Second
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Path = filepath.Join(t.TempDir(), "dashboard.json")
	eng, err := signal.NewEngine(config.ModelConfig{Enabled: false}, log)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		client:   venue,
		engine:   eng,
		tracker:  pnl.NewTracker(store, log),
		position: position.NewManager(venue, cfg.Risk, cfg.Exchange.Symbol, log),
		executor: orders.NewExecutor(venue, store, log),
		machine:  strategy.NewStateMachine(),
		metrics:  metrics.NewNoop(),
		alerts:   alerts.NewTelegram(config.TelegramConfig{}, log),
		lastRead: signal.Read{Signal: signal.Neutral},
	}
}

func TestParseOperatorCommand(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"/status", "status"},
		{"/PAUSE now please", "pause"},
		{"/close@spreadbot", "close"},
		{"  /help  ", "help"},
		{"hello", "hello"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := parseOperatorCommand(tc.text); got != tc.want {
			t.Fatalf("parseOperatorCommand(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestAllowedOperator(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	if !a.allowedOperator(42) {
		t.Fatal("empty allow list should admit everyone")
	}
	a.cfg.Telegram.OperatorAllowedUserIDs = []int64{7, 9}
	if a.allowedOperator(42) {
		t.Fatal("user 42 is not on the allow list")
	}
	if !a.allowedOperator(9) {
		t.Fatal("user 9 is on the allow list")
	}
}

func TestPauseResumeCommands(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	ctx := context.Background()

	reply := a.runOperatorCommand(ctx, "pause")
	if !a.isPaused() {
		t.Fatalf("pause did not take effect, reply %q", reply)
	}
	reply = a.runOperatorCommand(ctx, "resume")
	if a.isPaused() {
		t.Fatalf("resume did not clear pause, reply %q", reply)
	}
}

func TestResumeClearsHalt(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	ctx := context.Background()
	if _, err := a.machine.Apply(strategy.EventStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := a.machine.Apply(strategy.EventWarmed); err != nil {
		t.Fatalf("warmed: %v", err)
	}
	a.halt(ctx, "daily loss limit")
	if a.machine.State() != strategy.StateHalted {
		t.Fatalf("state = %s, want halted", a.machine.State())
	}
	a.runOperatorCommand(ctx, "resume")
	if a.machine.State() != strategy.StateQuoting {
		t.Fatalf("state = %s, want quoting after resume", a.machine.State())
	}
	if a.getHaltReason() != "" {
		t.Fatalf("halt reason still set: %q", a.getHaltReason())
	}
}

func TestResumeRefusedAfterTotalLossHalt(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	ctx := context.Background()
	if _, err := a.machine.Apply(strategy.EventStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := a.machine.Apply(strategy.EventWarmed); err != nil {
		t.Fatalf("warmed: %v", err)
	}
	a.halt(ctx, "total loss limit")
	a.setTotalLossHalt()
	a.runOperatorCommand(ctx, "resume")
	if a.machine.State() != strategy.StateHalted {
		t.Fatalf("state = %s, total loss halt must stay down", a.machine.State())
	}
}

func TestCloseCommandFlattensAndHalts(t *testing.T) {
	venue := &stubVenue{
		positions: []exchange.Position{{
			Symbol: "SOLUSDT", Side: exchange.SideBuy, Qty: 10,
			EntryPrice: 100, MarkPrice: 100, Leverage: 5,
		}},
	}
	a := newTestApp(t, &stubVenue{})
	a.client = venue
	a.position = position.NewManager(venue, a.cfg.Risk, a.cfg.Exchange.Symbol, a.log)
	a.executor = orders.NewExecutor(venue, newMemStore(), a.log)
	ctx := context.Background()
	if _, err := a.machine.Apply(strategy.EventStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := a.machine.Apply(strategy.EventWarmed); err != nil {
		t.Fatalf("warmed: %v", err)
	}
	if _, err := a.position.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	a.runOperatorCommand(ctx, "close")

	if !venue.canceled {
		t.Fatal("close did not cancel open orders")
	}
	var closing *exchange.OrderRequest
	for i := range venue.placed {
		if venue.placed[i].ReduceOnly {
			closing = &venue.placed[i]
		}
	}
	if closing == nil {
		t.Fatal("close did not place a reduce-only order")
	}
	if closing.Side != exchange.SideSell || closing.Type != exchange.TypeMarket {
		t.Fatalf("close order side=%s type=%s, want sell market", closing.Side, closing.Type)
	}
	if a.machine.State() != strategy.StateHalted {
		t.Fatalf("state = %s, want halted after close", a.machine.State())
	}
}

func TestHaltBlocksQuoting(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	ctx := context.Background()
	if _, err := a.machine.Apply(strategy.EventStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := a.machine.Apply(strategy.EventWarmed); err != nil {
		t.Fatalf("warmed: %v", err)
	}
	a.halt(ctx, "test halt")
	if a.machine.State() == strategy.StateQuoting {
		t.Fatal("halt left the machine quoting")
	}
	if a.getOpenOrders() != 0 {
		t.Fatalf("open orders = %d after halt, want 0", a.getOpenOrders())
	}
}

func TestWriteDashboard(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	stats := a.tracker.Stats()
	pos := a.position.Current()
	if err := a.writeDashboard(stats, pos); err != nil {
		t.Fatalf("write dashboard: %v", err)
	}
	raw, err := os.ReadFile(a.cfg.Dashboard.Path)
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	var doc dashboardState
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("dashboard is not valid json: %v", err)
	}
	if doc.Symbol != "SOLUSDT" {
		t.Fatalf("symbol = %q", doc.Symbol)
	}
	if doc.Signal.Direction != string(signal.Neutral) {
		t.Fatalf("signal = %q, want neutral", doc.Signal.Direction)
	}
	if doc.LastUpdate.IsZero() {
		t.Fatal("last_update not set")
	}
	entries, err := os.ReadDir(filepath.Dir(a.cfg.Dashboard.Path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestStatusReplyMentionsState(t *testing.T) {
	a := newTestApp(t, &stubVenue{})
	a.setPaused(true)
	reply := a.statusReply()
	for _, want := range []string{"state: IDLE", "SOLUSDT", "paused by operator"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("status reply missing %q:\n%s", want, reply)
		}
	}
}

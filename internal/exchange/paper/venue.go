package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"

	"go.uber.org/zap"
)

// Venue simulates the account side of an exchange while passing
// market data through to a real feed. Resting limit orders fill when
// the observed price crosses them, so every market data call doubles
// as a matching tick.
type Venue struct {
	feed   exchange.Client
	symbol string
	log    *zap.Logger

	makerFeePct float64
	takerFeePct float64
	mmPct       float64

	mu       sync.Mutex
	cash     float64
	leverage float64
	orders   map[string]*exchange.Order
	fills    []exchange.Fill
	posQty   float64
	posEntry float64
	mark     float64
	realized float64
	seq      int64

	startBal    float64
	peakEquity  float64
	lowEquity   float64
	maxDrawdown float64
}

func New(feed exchange.Client, symbol string, startingBalance, makerFeePct, takerFeePct float64, log *zap.Logger) *Venue {
	if startingBalance <= 0 {
		startingBalance = 1000
	}
	return &Venue{
		feed:        feed,
		symbol:      symbol,
		log:         log,
		makerFeePct: makerFeePct,
		takerFeePct: takerFeePct,
		mmPct:       0.5,
		cash:        startingBalance,
		leverage:    1,
		orders:      make(map[string]*exchange.Order),
		startBal:    startingBalance,
		peakEquity:  startingBalance,
		lowEquity:   startingBalance,
	}
}

func (v *Venue) Name() string { return "paper" }

func (v *Venue) Ticker(ctx context.Context) (exchange.Ticker, error) {
	t, err := v.feed.Ticker(ctx)
	if err != nil {
		return exchange.Ticker{}, err
	}
	v.Mark(t.Mid())
	return t, nil
}

func (v *Venue) OrderBook(ctx context.Context, depth int) (exchange.OrderBook, error) {
	book, err := v.feed.OrderBook(ctx, depth)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		v.Mark((book.Bids[0].Price + book.Asks[0].Price) / 2)
	}
	return book, nil
}

func (v *Venue) Candles(ctx context.Context, interval string, limit int) ([]exchange.Candle, error) {
	return v.feed.Candles(ctx, interval, limit)
}

// Mark advances the simulated market and crosses any resting orders.
// Buys fill when the price trades at or below their limit, sells at
// or above.
func (v *Venue) Mark(price float64) {
	if price <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mark = price
	for id, order := range v.orders {
		crossed := (order.Side == exchange.SideBuy && price <= order.Price) ||
			(order.Side == exchange.SideSell && price >= order.Price)
		if !crossed {
			continue
		}
		delete(v.orders, id)
		v.fill(order, order.Price, v.makerFeePct)
	}
	v.observeEquityLocked()
}

// observeEquityLocked updates the session's peak, low and maximum
// peak-to-trough drawdown from the current mark-to-market equity.
func (v *Venue) observeEquityLocked() {
	eq := v.cash + v.unrealizedLocked()
	if eq > v.peakEquity {
		v.peakEquity = eq
	}
	if eq < v.lowEquity {
		v.lowEquity = eq
	}
	if dd := v.peakEquity - eq; dd > v.maxDrawdown {
		v.maxDrawdown = dd
	}
}

// fill applies one execution to the position and cash. Reducing fills
// realize pnl against the average entry.
func (v *Venue) fill(order *exchange.Order, price float64, feePct float64) {
	qty := order.Qty - order.Filled
	signed := qty
	if order.Side == exchange.SideSell {
		signed = -qty
	}
	fee := qty * price * feePct / 100
	v.cash -= fee

	switch {
	case v.posQty == 0 || sameSign(v.posQty, signed):
		total := math.Abs(v.posQty) + qty
		v.posEntry = (v.posEntry*math.Abs(v.posQty) + price*qty) / total
		v.posQty += signed
	case math.Abs(signed) <= math.Abs(v.posQty):
		pnl := (price - v.posEntry) * qty
		if v.posQty < 0 {
			pnl = -pnl
		}
		v.cash += pnl
		v.realized += pnl
		v.posQty += signed
		if v.posQty == 0 {
			v.posEntry = 0
		}
	default:
		closed := math.Abs(v.posQty)
		pnl := (price - v.posEntry) * closed
		if v.posQty < 0 {
			pnl = -pnl
		}
		v.cash += pnl
		v.realized += pnl
		v.posQty += signed
		v.posEntry = price
	}

	v.seq++
	v.fills = append(v.fills, exchange.Fill{
		TradeID: fmt.Sprintf("paper-t-%d", v.seq),
		OrderID: order.ID,
		Symbol:  v.symbol,
		Side:    order.Side,
		Qty:     qty,
		Price:   price,
		Fee:     fee,
		Time:    time.Now(),
	})
	v.observeEquityLocked()
	if v.log != nil {
		v.log.Debug("paper fill",
			zap.String("side", order.Side),
			zap.Float64("qty", qty),
			zap.Float64("price", price),
			zap.Float64("fee", fee))
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func (v *Venue) Balance(ctx context.Context) (exchange.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	upnl := v.unrealizedLocked()
	used := 0.0
	if v.leverage > 0 {
		used = math.Abs(v.posQty) * v.posEntry / v.leverage
	}
	return exchange.Balance{
		Asset:         "USDT",
		Total:         v.cash + upnl,
		Free:          v.cash - used,
		UnrealizedPnL: upnl,
	}, nil
}

func (v *Venue) unrealizedLocked() float64 {
	if v.posQty == 0 || v.mark <= 0 {
		return 0
	}
	return (v.mark - v.posEntry) * v.posQty
}

func (v *Venue) Positions(ctx context.Context) ([]exchange.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.posQty == 0 {
		return nil, nil
	}
	side := exchange.SideBuy
	liq := v.posEntry * (1 - 1/v.leverage + v.mmPct/100)
	if v.posQty < 0 {
		side = exchange.SideSell
		liq = v.posEntry * (1 + 1/v.leverage - v.mmPct/100)
	}
	return []exchange.Position{{
		Symbol:        v.symbol,
		Side:          side,
		Qty:           math.Abs(v.posQty),
		EntryPrice:    v.posEntry,
		MarkPrice:     v.mark,
		UnrealizedPnL: v.unrealizedLocked(),
		LiqPrice:      liq,
		Leverage:      v.leverage,
	}}, nil
}

func (v *Venue) OpenOrders(ctx context.Context) ([]exchange.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	orders := make([]exchange.Order, 0, len(v.orders))
	for _, order := range v.orders {
		orders = append(orders, *order)
	}
	return orders, nil
}

func (v *Venue) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if req.Qty <= 0 {
		return exchange.Order{}, errors.New("quantity must be positive")
	}
	if req.ReduceOnly {
		room := math.Abs(v.posQty)
		if room == 0 || (v.posQty > 0 && req.Side == exchange.SideBuy) || (v.posQty < 0 && req.Side == exchange.SideSell) {
			return exchange.Order{}, errors.New("reduce-only order does not reduce")
		}
		if req.Qty > room {
			req.Qty = room
		}
	}
	v.seq++
	order := &exchange.Order{
		ID:       fmt.Sprintf("paper-%d", v.seq),
		ClientID: req.ClientID,
		Symbol:   v.symbol,
		Side:     req.Side,
		Price:    req.Price,
		Qty:      req.Qty,
		Status:   exchange.StatusNew,
		Created:  time.Now(),
	}
	if req.Type == exchange.TypeMarket {
		if v.mark <= 0 {
			return exchange.Order{}, errors.New("no market price observed yet")
		}
		v.fill(order, v.mark, v.takerFeePct)
		order.Status = exchange.StatusFilled
		order.Filled = order.Qty
		return *order, nil
	}
	if req.Price <= 0 {
		return exchange.Order{}, errors.New("limit price must be positive")
	}
	// Post-only orders that would cross on arrival are rejected the
	// way the live venues reject them.
	if req.TimeInForce == exchange.TifPostOnly && v.mark > 0 {
		if (req.Side == exchange.SideBuy && req.Price >= v.mark) ||
			(req.Side == exchange.SideSell && req.Price <= v.mark) {
			return exchange.Order{}, &exchange.APIError{Venue: "paper", Code: 1, Message: "post-only order would cross"}
		}
	}
	v.orders[order.ID] = order
	return *order, nil
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[orderID]; !ok {
		return &exchange.APIError{Venue: "paper", Code: 2, Message: "order not found"}
	}
	delete(v.orders, orderID)
	return nil
}

func (v *Venue) CancelAll(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = make(map[string]*exchange.Order)
	return nil
}

func (v *Venue) Fills(ctx context.Context, since time.Time, limit int) ([]exchange.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]exchange.Fill, 0, len(v.fills))
	for _, f := range v.fills {
		if !since.IsZero() && f.Time.Before(since) {
			continue
		}
		out = append(out, f)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (v *Venue) SetLeverage(ctx context.Context, leverage int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if leverage < 1 {
		return errors.New("leverage must be at least 1")
	}
	v.leverage = float64(leverage)
	return nil
}

func (v *Venue) SetPositionMode(ctx context.Context) error { return nil }

// RealizedPnL reports the running total from closed paper trades.
func (v *Venue) RealizedPnL() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.realized
}

// Stats summarizes the simulated session: starting balance, current
// mark-to-market equity, the best and worst equity seen, and the
// maximum peak-to-trough drawdown in USD.
type Stats struct {
	StartBalance float64
	Equity       float64
	PeakEquity   float64
	LowEquity    float64
	MaxDrawdown  float64
	RealizedPnL  float64
	Fills        int
}

func (v *Venue) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Stats{
		StartBalance: v.startBal,
		Equity:       v.cash + v.unrealizedLocked(),
		PeakEquity:   v.peakEquity,
		LowEquity:    v.lowEquity,
		MaxDrawdown:  v.maxDrawdown,
		RealizedPnL:  v.realized,
		Fills:        len(v.fills),
	}
}

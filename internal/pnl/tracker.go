// Package pnl realizes profit from fills with FIFO lot matching. Buy
// and sell fills queue up as lots; whenever both sides hold inventory
// the oldest lots pair off, realizing (sell - buy) * qty minus the
// fees each lot contributed, prorated by the matched fraction.
package pnl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/state"
)

type lot struct {
	qty   float64
	price float64
	fee   float64
	time  time.Time
}

// Stats is a point-in-time view of the tracker's counters.
type Stats struct {
	RealizedPnL    float64
	DailyPnL       float64
	TotalVolume    float64
	TotalFees      float64
	MatchedTrades  int
	UnmatchedBuys  float64
	UnmatchedSells float64
	RebalanceCount int
	Uptime         time.Duration
}

type Tracker struct {
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	buys  []lot
	sells []lot
	seen  map[string]struct{}
	snap  state.SessionSnapshot
	now   func() time.Time
}

func NewTracker(store state.Store, log *zap.Logger) *Tracker {
	t := &Tracker{
		store: store,
		log:   log,
		seen:  make(map[string]struct{}),
		now:   time.Now,
	}
	t.snap.StartedAtMS = t.now().UnixMilli()
	t.snap.DailyDate = t.dateUTC()
	return t
}

// Restore loads persisted counters from the store. Lot queues do not
// survive a restart; only the realized figures carry over.
func (t *Tracker) Restore(ctx context.Context) error {
	snap, ok, err := state.LoadSessionSnapshot(ctx, t.store)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	started := t.snap.StartedAtMS
	t.snap = snap
	t.snap.StartedAtMS = started
	t.rolloverLocked()
	t.log.Info("session restored",
		zap.Float64("realized_pnl", snap.RealizedPnL),
		zap.Float64("daily_pnl", t.snap.DailyPnL),
		zap.Int("matched_trades", snap.MatchedTrades))
	return nil
}

// Ingest processes a batch of fills, skipping any trade ID already
// seen, and returns the realized pnl delta and the number of lot
// matches it produced.
func (t *Tracker) Ingest(ctx context.Context, fills []exchange.Fill) (float64, int) {
	t.mu.Lock()
	t.rolloverLocked()
	var realized float64
	var matched int
	for _, f := range fills {
		if f.TradeID != "" {
			if _, dup := t.seen[f.TradeID]; dup {
				continue
			}
			t.seen[f.TradeID] = struct{}{}
			t.snap.LastTradeID = f.TradeID
		}
		t.snap.TotalVolume += f.Qty * f.Price
		t.snap.TotalFees += f.Fee
		l := lot{qty: f.Qty, price: f.Price, fee: f.Fee, time: f.Time}
		if f.Side == exchange.SideBuy {
			t.buys = append(t.buys, l)
		} else {
			t.sells = append(t.sells, l)
		}
		pnl, n := t.matchLocked()
		realized += pnl
		matched += n
	}
	t.snap.RealizedPnL += realized
	t.snap.DailyPnL += realized
	t.snap.MatchedTrades += matched
	t.mu.Unlock()

	if matched > 0 {
		t.log.Info("fifo matched",
			zap.Int("pairs", matched),
			zap.Float64("realized", realized))
	}
	if len(fills) > 0 {
		if err := t.Persist(ctx); err != nil {
			t.log.Warn("persist session snapshot failed", zap.Error(err))
		}
	}
	return realized, matched
}

func (t *Tracker) matchLocked() (float64, int) {
	var realized float64
	var matched int
	for len(t.buys) > 0 && len(t.sells) > 0 {
		buy := &t.buys[0]
		sell := &t.sells[0]
		qty := buy.qty
		if sell.qty < qty {
			qty = sell.qty
		}
		buyFee := buy.fee * qty / buy.qty
		sellFee := sell.fee * qty / sell.qty
		realized += (sell.price-buy.price)*qty - buyFee - sellFee
		buy.qty -= qty
		buy.fee -= buyFee
		sell.qty -= qty
		sell.fee -= sellFee
		if buy.qty <= 1e-12 {
			t.buys = t.buys[1:]
		}
		if sell.qty <= 1e-12 {
			t.sells = t.sells[1:]
		}
		matched++
	}
	return realized, matched
}

// rolloverLocked resets the daily figure when the UTC day changes.
func (t *Tracker) rolloverLocked() {
	today := t.dateUTC()
	if t.snap.DailyDate != today {
		if t.snap.DailyDate != "" && t.snap.DailyPnL != 0 {
			t.log.Info("daily pnl rolled over",
				zap.String("day", t.snap.DailyDate),
				zap.Float64("daily_pnl", t.snap.DailyPnL))
		}
		t.snap.DailyDate = today
		t.snap.DailyPnL = 0
	}
}

func (t *Tracker) dateUTC() string {
	return t.now().UTC().Format("2006-01-02")
}

func (t *Tracker) RecordRebalance() {
	t.mu.Lock()
	t.snap.RebalanceCount++
	t.mu.Unlock()
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	s := Stats{
		RealizedPnL:    t.snap.RealizedPnL,
		DailyPnL:       t.snap.DailyPnL,
		TotalVolume:    t.snap.TotalVolume,
		TotalFees:      t.snap.TotalFees,
		MatchedTrades:  t.snap.MatchedTrades,
		RebalanceCount: t.snap.RebalanceCount,
		Uptime:         time.Duration(t.now().UnixMilli()-t.snap.StartedAtMS) * time.Millisecond,
	}
	for _, l := range t.buys {
		s.UnmatchedBuys += l.qty * l.price
	}
	for _, l := range t.sells {
		s.UnmatchedSells += l.qty * l.price
	}
	return s
}

// Recap renders a human-readable session summary for the operator.
func (t *Tracker) Recap() string {
	s := t.Stats()
	return fmt.Sprintf(
		"session %s | realized %.4f | daily %.4f | volume %.2f | fees %.4f | matched %d | rebalances %d | open buys %.2f / sells %.2f",
		s.Uptime.Round(time.Second), s.RealizedPnL, s.DailyPnL, s.TotalVolume,
		s.TotalFees, s.MatchedTrades, s.RebalanceCount, s.UnmatchedBuys, s.UnmatchedSells)
}

// Persist writes the counters to the store.
func (t *Tracker) Persist(ctx context.Context) error {
	t.mu.Lock()
	snap := t.snap
	t.mu.Unlock()
	return state.SaveSessionSnapshot(ctx, t.store, snap)
}

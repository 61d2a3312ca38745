// Package position tracks the venue position for one symbol and
// brings it back toward flat when it grows past the configured
// threshold or drifts too close to liquidation.
package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

// RiskLevel buckets the distance between mark and liquidation price.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

const historyCap = 1000

// Snapshot is one observed position state.
type Snapshot struct {
	Qty         float64
	NotionalUSD float64
	EntryPrice  float64
	MarkPrice   float64
	Unrealized  float64
	LiqDistance float64
	Risk        RiskLevel
	At          time.Time
}

type Manager struct {
	client exchange.Client
	cfg    config.RiskConfig
	symbol string
	log    *zap.Logger

	mu      sync.Mutex
	current Snapshot
	history []Snapshot
}

func NewManager(client exchange.Client, cfg config.RiskConfig, symbol string, log *zap.Logger) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		symbol: symbol,
		log:    log,
	}
}

// Refresh fetches the venue position and updates the cached snapshot.
func (m *Manager) Refresh(ctx context.Context) (Snapshot, error) {
	positions, err := m.client.Positions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch positions: %w", err)
	}
	var pos exchange.Position
	for _, p := range positions {
		if p.Symbol == m.symbol {
			pos = p
			break
		}
	}
	snap := m.observe(pos)

	m.mu.Lock()
	m.current = snap
	m.history = append(m.history, snap)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()
	return snap, nil
}

func (m *Manager) observe(pos exchange.Position) Snapshot {
	snap := Snapshot{
		Qty:        pos.SignedQty(),
		EntryPrice: pos.EntryPrice,
		MarkPrice:  pos.MarkPrice,
		Unrealized: pos.UnrealizedPnL,
		Risk:       RiskNone,
		At:         time.Now(),
	}
	snap.NotionalUSD = snap.Qty * pos.MarkPrice
	if pos.Notional != 0 {
		snap.NotionalUSD = math.Copysign(math.Abs(pos.Notional), snap.Qty)
	}
	if snap.Qty == 0 {
		return snap
	}
	snap.LiqDistance, snap.Risk = m.liquidationRisk(pos)
	return snap
}

// liquidationRisk returns the fractional distance between mark and
// liquidation price and its severity band. When the venue does not
// report a liquidation price the distance is approximated from entry
// price, leverage and maintenance margin.
func (m *Manager) liquidationRisk(pos exchange.Position) (float64, RiskLevel) {
	mark := pos.MarkPrice
	if mark <= 0 {
		mark = pos.EntryPrice
	}
	if mark <= 0 {
		return 0, RiskNone
	}
	liq := pos.LiqPrice
	if liq <= 0 {
		liq = m.estimateLiqPrice(pos)
	}
	if liq <= 0 {
		return 0, RiskNone
	}
	dist := math.Abs(mark-liq) / mark
	switch {
	case dist < 0.05:
		return dist, RiskCritical
	case dist < 0.10:
		return dist, RiskHigh
	case dist < 0.20:
		return dist, RiskMedium
	default:
		return dist, RiskNone
	}
}

func (m *Manager) estimateLiqPrice(pos exchange.Position) float64 {
	lev := pos.Leverage
	if lev <= 0 {
		lev = float64(m.cfg.Leverage)
	}
	if lev <= 0 || pos.EntryPrice <= 0 {
		return 0
	}
	maint := m.cfg.MaintenanceMarginPct / 100
	if pos.SignedQty() > 0 {
		return pos.EntryPrice * (1 - 1/lev + maint)
	}
	return pos.EntryPrice * (1 + 1/lev - maint)
}

// Current returns the last observed snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NeedsRebalance reports whether the cached position exceeds the USD
// threshold or sits in a high or critical liquidation band.
func (m *Manager) NeedsRebalance() bool {
	snap := m.Current()
	if math.Abs(snap.NotionalUSD) > m.cfg.RebalanceThresholdUSD {
		return true
	}
	return snap.Risk == RiskHigh || snap.Risk == RiskCritical
}

// Rebalance reduces the position with a reduce-only market order for
// the configured fraction of its size, then refetches to confirm the
// venue accepted the reduction.
func (m *Manager) Rebalance(ctx context.Context, amountPrecision int, minAmount float64) error {
	snap := m.Current()
	if snap.Qty == 0 {
		return nil
	}
	qty := exchange.RoundDown(math.Abs(snap.Qty)*m.cfg.RebalanceFraction, amountPrecision)
	if qty < minAmount {
		m.log.Debug("rebalance qty below venue minimum",
			zap.Float64("qty", qty),
			zap.Float64("min_amount", minAmount))
		return nil
	}
	side := exchange.SideSell
	if snap.Qty < 0 {
		side = exchange.SideBuy
	}
	m.log.Warn("rebalancing position",
		zap.Float64("position_usd", snap.NotionalUSD),
		zap.String("side", side),
		zap.Float64("qty", qty))

	_, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     m.symbol,
		Side:       side,
		Type:       exchange.TypeMarket,
		Qty:        qty,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("rebalance order: %w", err)
	}

	after, err := m.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("verify rebalance: %w", err)
	}
	if math.Abs(after.Qty) >= math.Abs(snap.Qty) {
		return fmt.Errorf("rebalance did not reduce position: %.6f -> %.6f", snap.Qty, after.Qty)
	}
	m.log.Info("position rebalanced",
		zap.Float64("before", snap.Qty),
		zap.Float64("after", after.Qty))
	return nil
}

// EmergencyCloseAll cancels every resting order and closes the whole
// position at market. Used by the operator /close command and on
// critical liquidation risk.
func (m *Manager) EmergencyCloseAll(ctx context.Context, amountPrecision int) error {
	if err := m.client.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	snap, err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	if snap.Qty == 0 {
		return nil
	}
	qty := exchange.RoundDown(math.Abs(snap.Qty), amountPrecision)
	if qty <= 0 {
		qty = math.Abs(snap.Qty)
	}
	side := exchange.SideSell
	if snap.Qty < 0 {
		side = exchange.SideBuy
	}
	m.log.Warn("emergency close",
		zap.String("side", side),
		zap.Float64("qty", qty))
	_, err = m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     m.symbol,
		Side:       side,
		Type:       exchange.TypeMarket,
		Qty:        qty,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	return nil
}

// HistoryStats summarizes the observed position over the retained
// window.
type HistoryStats struct {
	Samples     int
	MaxAbsUSD   float64
	MeanAbsUSD  float64
	TimeNonFlat float64
}

func (m *Manager) Stats() HistoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := HistoryStats{Samples: len(m.history)}
	if s.Samples == 0 {
		return s
	}
	var sum float64
	var nonFlat int
	for _, snap := range m.history {
		abs := math.Abs(snap.NotionalUSD)
		sum += abs
		if abs > s.MaxAbsUSD {
			s.MaxAbsUSD = abs
		}
		if snap.Qty != 0 {
			nonFlat++
		}
	}
	s.MeanAbsUSD = sum / float64(s.Samples)
	s.TimeNonFlat = float64(nonFlat) / float64(s.Samples)
	return s
}

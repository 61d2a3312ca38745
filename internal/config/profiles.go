package config

import (
	"fmt"
	"time"
)

// profile captures the trading knobs a named risk profile pre-sets.
// File values always win: a profile only fills fields left unset.
type profile struct {
	Leverage              int
	NumOrders             int
	OrderRefreshInterval  time.Duration
	MinSpreadPct          float64
	MaxSpreadPct          float64
	TargetSpreadMult      float64
	MaxPositionUSD        float64
	RebalanceThresholdUSD float64
	MinOrderUSD           float64
	MaxOrderUSD           float64
	BaseOrderUSD          float64
	MaxDailyLossUSD       float64
	MaxTotalLossUSD       float64
}

var profiles = map[string]profile{
	"safe": {
		Leverage: 3, NumOrders: 3, OrderRefreshInterval: 5 * time.Second,
		MinSpreadPct: 0.02, MaxSpreadPct: 0.15, TargetSpreadMult: 0.7,
		MaxPositionUSD: 50, RebalanceThresholdUSD: 25,
		MinOrderUSD: 5, MaxOrderUSD: 15, BaseOrderUSD: 8,
		MaxDailyLossUSD: -10, MaxTotalLossUSD: -20,
	},
	"balanced": {
		Leverage: 4, NumOrders: 4, OrderRefreshInterval: 3 * time.Second,
		MinSpreadPct: 0.015, MaxSpreadPct: 0.12, TargetSpreadMult: 0.75,
		MaxPositionUSD: 65, RebalanceThresholdUSD: 35,
		MinOrderUSD: 6, MaxOrderUSD: 18, BaseOrderUSD: 10,
		MaxDailyLossUSD: -12, MaxTotalLossUSD: -25,
	},
	"aggressive": {
		Leverage: 4, NumOrders: 5, OrderRefreshInterval: 3 * time.Second,
		MinSpreadPct: 0.015, MaxSpreadPct: 0.10, TargetSpreadMult: 0.8,
		MaxPositionUSD: 70, RebalanceThresholdUSD: 35,
		MinOrderUSD: 8, MaxOrderUSD: 18, BaseOrderUSD: 12,
		MaxDailyLossUSD: -15, MaxTotalLossUSD: -25,
	},
	"turbo": {
		Leverage: 5, NumOrders: 5, OrderRefreshInterval: 2 * time.Second,
		MinSpreadPct: 0.01, MaxSpreadPct: 0.08, TargetSpreadMult: 0.8,
		MaxPositionUSD: 80, RebalanceThresholdUSD: 40,
		MinOrderUSD: 8, MaxOrderUSD: 20, BaseOrderUSD: 12,
		MaxDailyLossUSD: -15, MaxTotalLossUSD: -30,
	},
	"ultra": {
		Leverage: 5, NumOrders: 6, OrderRefreshInterval: 2 * time.Second,
		MinSpreadPct: 0.008, MaxSpreadPct: 0.06, TargetSpreadMult: 0.85,
		MaxPositionUSD: 90, RebalanceThresholdUSD: 45,
		MinOrderUSD: 10, MaxOrderUSD: 22, BaseOrderUSD: 15,
		MaxDailyLossUSD: -20, MaxTotalLossUSD: -35,
	},
}

func applyProfile(cfg *Config) error {
	if cfg.Profile == "" {
		return nil
	}
	p, ok := profiles[cfg.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	if cfg.Risk.Leverage == 0 {
		cfg.Risk.Leverage = p.Leverage
	}
	if cfg.Strategy.NumOrders == 0 {
		cfg.Strategy.NumOrders = p.NumOrders
	}
	if cfg.Strategy.OrderRefreshInterval == 0 {
		cfg.Strategy.OrderRefreshInterval = p.OrderRefreshInterval
	}
	if cfg.Strategy.MinSpreadPct == 0 {
		cfg.Strategy.MinSpreadPct = p.MinSpreadPct
	}
	if cfg.Strategy.MaxSpreadPct == 0 {
		cfg.Strategy.MaxSpreadPct = p.MaxSpreadPct
	}
	if cfg.Strategy.TargetSpreadMultiplier == 0 {
		cfg.Strategy.TargetSpreadMultiplier = p.TargetSpreadMult
	}
	if cfg.Risk.MaxPositionUSD == 0 {
		cfg.Risk.MaxPositionUSD = p.MaxPositionUSD
	}
	if cfg.Risk.RebalanceThresholdUSD == 0 {
		cfg.Risk.RebalanceThresholdUSD = p.RebalanceThresholdUSD
	}
	if cfg.Strategy.MinOrderUSD == 0 {
		cfg.Strategy.MinOrderUSD = p.MinOrderUSD
	}
	if cfg.Strategy.MaxOrderUSD == 0 {
		cfg.Strategy.MaxOrderUSD = p.MaxOrderUSD
	}
	if cfg.Strategy.BaseOrderUSD == 0 {
		cfg.Strategy.BaseOrderUSD = p.BaseOrderUSD
	}
	if cfg.Risk.MaxDailyLossUSD == 0 {
		cfg.Risk.MaxDailyLossUSD = p.MaxDailyLossUSD
	}
	if cfg.Risk.MaxTotalLossUSD == 0 {
		cfg.Risk.MaxTotalLossUSD = p.MaxTotalLossUSD
	}
	return nil
}

package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
)

var (
	ErrDailyLoss       = errors.New("daily loss limit reached")
	ErrTotalLoss       = errors.New("total loss limit reached")
	ErrPositionCap     = errors.New("position exceeds configured maximum")
	ErrLeverageCap     = errors.New("leverage exceeds configured maximum")
	ErrTooManyOrders   = errors.New("open orders exceed configured maximum")
	ErrMarketStale     = errors.New("market data stale")
	ErrLiquidationRisk = errors.New("position too close to liquidation")
)

// liquidation closer than this fraction of mark halts quoting
const liqHaltDistance = 0.10

// CheckLimits is the hard gate in front of every quoting cycle. Loss
// limits are negative USD floors, matching how config validates them;
// pnl at or below the floor breaches. A zero value disables a check.
func CheckLimits(cfg config.RiskConfig, snap Snapshot, maxDataAge time.Duration) error {
	if cfg.MaxDailyLossUSD < 0 && snap.DailyPnL <= cfg.MaxDailyLossUSD {
		return fmt.Errorf("daily pnl %.2f breaches %.2f: %w", snap.DailyPnL, cfg.MaxDailyLossUSD, ErrDailyLoss)
	}
	if cfg.MaxTotalLossUSD < 0 && snap.RealizedPnL <= cfg.MaxTotalLossUSD {
		return fmt.Errorf("realized pnl %.2f breaches %.2f: %w", snap.RealizedPnL, cfg.MaxTotalLossUSD, ErrTotalLoss)
	}
	if cfg.MaxPositionUSD > 0 && math.Abs(snap.PositionUSD) > cfg.MaxPositionUSD {
		return fmt.Errorf("position %.2f USD exceeds %.2f: %w", snap.PositionUSD, cfg.MaxPositionUSD, ErrPositionCap)
	}
	if cfg.MaxLeverage > 0 && snap.Leverage > float64(cfg.MaxLeverage) {
		return fmt.Errorf("leverage %.1f exceeds %d: %w", snap.Leverage, cfg.MaxLeverage, ErrLeverageCap)
	}
	if cfg.MaxOpenOrders > 0 && snap.OpenOrderCount > cfg.MaxOpenOrders {
		return fmt.Errorf("%d open orders exceed %d: %w", snap.OpenOrderCount, cfg.MaxOpenOrders, ErrTooManyOrders)
	}
	if maxDataAge > 0 && snap.DataAge > maxDataAge {
		return fmt.Errorf("market data age %s exceeds %s: %w", snap.DataAge, maxDataAge, ErrMarketStale)
	}
	if snap.HasLiqDistance && snap.LiqDistance < liqHaltDistance {
		return fmt.Errorf("liquidation %.1f%% away: %w", snap.LiqDistance*100, ErrLiquidationRisk)
	}
	return nil
}

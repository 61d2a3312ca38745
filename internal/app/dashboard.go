package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/pnl"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/position"
)

type dashboardPnL struct {
	Realized  float64 `json:"realized"`
	Daily     float64 `json:"daily"`
	TotalFees float64 `json:"total_fees"`
}

type dashboardPosition struct {
	Qty             float64 `json:"qty"`
	NotionalUSD     float64 `json:"notional_usd"`
	EntryPrice      float64 `json:"entry_price"`
	MarkPrice       float64 `json:"mark_price"`
	Unrealized      float64 `json:"unrealized"`
	LiqDistancePct  float64 `json:"liq_distance_pct"`
	LiquidationRisk string  `json:"liquidation_risk"`
}

type dashboardSignal struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Prob       float64 `json:"prob"`
}

type dashboardState struct {
	Venue      string            `json:"venue"`
	Symbol     string            `json:"symbol"`
	State      string            `json:"state"`
	Paused     bool              `json:"paused"`
	HaltReason string            `json:"halt_reason,omitempty"`
	PnL        dashboardPnL      `json:"pnl"`
	VolumeUSD  float64           `json:"volume_usd"`
	Trades     int               `json:"trades"`
	Rebalances int               `json:"rebalances"`
	OpenOrders int               `json:"open_orders"`
	SpreadPct  float64           `json:"spread_pct"`
	Position   dashboardPosition `json:"position"`
	Signal     dashboardSignal   `json:"signal"`
	UptimeSec  float64           `json:"uptime_sec"`
	LastUpdate time.Time         `json:"last_update"`
}

// writeDashboard publishes the bot's state as a JSON file for external
// dashboards. The temp-file rename keeps readers from ever seeing a
// half-written document.
func (a *App) writeDashboard(stats pnl.Stats, pos position.Snapshot) error {
	read := a.getLastRead()
	doc := dashboardState{
		Venue:      a.client.Name(),
		Symbol:     a.cfg.Exchange.Symbol,
		State:      string(a.machine.State()),
		Paused:     a.isPaused(),
		HaltReason: a.getHaltReason(),
		PnL: dashboardPnL{
			Realized:  stats.RealizedPnL,
			Daily:     stats.DailyPnL,
			TotalFees: stats.TotalFees,
		},
		VolumeUSD:  stats.TotalVolume,
		Trades:     stats.MatchedTrades,
		Rebalances: stats.RebalanceCount,
		OpenOrders: a.getOpenOrders(),
		SpreadPct:  a.lastSpread,
		Position: dashboardPosition{
			Qty:             pos.Qty,
			NotionalUSD:     pos.NotionalUSD,
			EntryPrice:      pos.EntryPrice,
			MarkPrice:       pos.MarkPrice,
			Unrealized:      pos.Unrealized,
			LiqDistancePct:  pos.LiqDistance * 100,
			LiquidationRisk: string(pos.Risk),
		},
		Signal: dashboardSignal{
			Direction:  string(read.Signal),
			Confidence: read.Confidence,
			Prob:       read.Prob,
		},
		UptimeSec:  stats.Uptime.Seconds(),
		LastUpdate: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := a.cfg.Dashboard.Path
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

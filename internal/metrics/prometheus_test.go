package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersCanceled.Add(3)
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.Fills.Inc()
	prom.Metrics.Rebalances.Inc()
	prom.Metrics.Halts.Inc()
	prom.Metrics.WSReconnects.Inc()
	prom.Metrics.JournalDrops.Inc()

	assertValue(t, prom, "orders_placed_total", 1)
	assertValue(t, prom, "orders_canceled_total", 3)
	assertValue(t, prom, "orders_failed_total", 1)
	assertValue(t, prom, "fills_total", 1)
	assertValue(t, prom, "rebalances_total", 1)
	assertValue(t, prom, "halts_total", 1)
	assertValue(t, prom, "ws_reconnects_total", 1)
	assertValue(t, prom, "journal_drops_total", 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.RealizedPnL.Set(12.5)
	prom.Metrics.DailyPnL.Set(-3)
	prom.Metrics.PositionUSD.Set(-150)
	prom.Metrics.SpreadPct.Set(0.25)
	prom.Metrics.SignalConfidence.Set(0.8)
	prom.Metrics.OpenOrders.Set(6)

	if got := testutil.ToFloat64(prom.gauges["realized_pnl_usd"]); got != 12.5 {
		t.Fatalf("realized_pnl_usd = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(prom.gauges["position_usd"]); got != -150 {
		t.Fatalf("position_usd = %v, want -150", got)
	}
	if got := testutil.ToFloat64(prom.gauges["open_orders"]); got != 6 {
		t.Fatalf("open_orders = %v, want 6", got)
	}
}

func assertValue(t *testing.T, prom *Prometheus, name string, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(prom.counters[name]); got != expected {
		t.Fatalf("%s = %v, want %v", name, got, expected)
	}
}

func TestNoopMetricsSafe(t *testing.T) {
	m := NewNoop()
	m.OrdersPlaced.Inc()
	m.OrdersCanceled.Add(2)
	m.PositionUSD.Set(100)
}

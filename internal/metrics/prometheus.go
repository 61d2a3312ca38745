package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "spread_capture"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc()              { p.counter.Inc() }
func (p promCounter) Add(delta float64) { p.counter.Add(delta) }

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(value float64) { p.gauge.Set(value) }

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
	p.Metrics = &Metrics{
		OrdersPlaced:   p.counter("orders_placed_total", "Total number of orders placed."),
		OrdersCanceled: p.counter("orders_canceled_total", "Total number of orders canceled."),
		OrdersFailed:   p.counter("orders_failed_total", "Total number of order operation failures."),
		Fills:          p.counter("fills_total", "Total number of fills ingested."),
		Rebalances:     p.counter("rebalances_total", "Total number of position rebalances."),
		Halts:          p.counter("halts_total", "Total number of risk halts."),
		WSReconnects:   p.counter("ws_reconnects_total", "Total number of websocket reconnects."),
		JournalDrops:   p.counter("journal_drops_total", "Total number of journal records dropped."),

		RealizedPnL:      p.gauge("realized_pnl_usd", "Realized session pnl in USD."),
		DailyPnL:         p.gauge("daily_pnl_usd", "Realized pnl for the current UTC day in USD."),
		PositionUSD:      p.gauge("position_usd", "Signed position notional in USD."),
		SpreadPct:        p.gauge("quoted_spread_pct", "Spread quoted in the last cycle as a percentage of mid."),
		SignalConfidence: p.gauge("signal_confidence", "Confidence of the latest model read."),
		OpenOrders:       p.gauge("open_orders", "Resting orders after the last reconcile."),
	}
	return p
}

func (p *Prometheus) counter(name, help string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(c)
	p.counters[name] = c
	return promCounter{c}
}

func (p *Prometheus) gauge(name, help string) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(g)
	p.gauges[name] = g
	return promGauge{g}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

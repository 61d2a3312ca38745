package metrics

type Counter interface {
	Inc()
	Add(delta float64)
}

type Gauge interface {
	Set(value float64)
}

type Metrics struct {
	OrdersPlaced   Counter
	OrdersCanceled Counter
	OrdersFailed   Counter
	Fills          Counter
	Rebalances     Counter
	Halts          Counter
	WSReconnects   Counter
	JournalDrops   Counter

	RealizedPnL      Gauge
	DailyPnL         Gauge
	PositionUSD      Gauge
	SpreadPct        Gauge
	SignalConfidence Gauge
	OpenOrders       Gauge
}

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		OrdersPlaced:   c,
		OrdersCanceled: c,
		OrdersFailed:   c,
		Fills:          c,
		Rebalances:     c,
		Halts:          c,
		WSReconnects:   c,
		JournalDrops:   c,

		RealizedPnL:      g,
		DailyPnL:         g,
		PositionUSD:      g,
		SpreadPct:        g,
		SignalConfidence: g,
		OpenOrders:       g,
	}
}

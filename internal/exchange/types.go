package exchange

import "time"

const (
	SideBuy  = "buy"
	SideSell = "sell"

	TypeLimit  = "limit"
	TypeMarket = "market"

	TifGTC      = "gtc"
	TifPostOnly = "post_only"

	StatusNew             = "new"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCanceled        = "canceled"
	StatusRejected        = "rejected"
)

type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	MarkPrice float64
	Time      time.Time
}

// Mid returns the midpoint of the quoted spread, falling back to the
// last trade when one side is missing.
func (t Ticker) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2
	}
	return t.Last
}

type BookLevel struct {
	Price float64
	Qty   float64
}

// OrderBook holds a level-2 snapshot. Bids are sorted descending by
// price, asks ascending, both starting at the touch.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
	Time   time.Time
}

type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type OrderRequest struct {
	Symbol      string
	Side        string
	Type        string
	Qty         float64
	Price       float64
	TimeInForce string
	ReduceOnly  bool
	ClientID    string
}

type Order struct {
	ID       string
	ClientID string
	Symbol   string
	Side     string
	Price    float64
	Qty      float64
	Filled   float64
	Status   string
	Created  time.Time
}

type Position struct {
	Symbol        string
	Side          string
	Qty           float64
	EntryPrice    float64
	MarkPrice     float64
	Notional      float64
	UnrealizedPnL float64
	LiqPrice      float64
	Margin        float64
	Leverage      float64
}

// SignedQty is positive for longs and negative for shorts.
func (p Position) SignedQty() float64 {
	if p.Side == SideSell {
		return -p.Qty
	}
	return p.Qty
}

type Balance struct {
	Asset         string
	Free          float64
	Total         float64
	UnrealizedPnL float64
}

type Fill struct {
	TradeID string
	OrderID string
	Symbol  string
	Side    string
	Qty     float64
	Price   float64
	Fee     float64
	Time    time.Time
}

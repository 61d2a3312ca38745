package exchange

import (
	"context"
	"fmt"
	"time"
)

// Client is the venue-neutral surface the bot trades through. A client
// is bound to a single symbol at construction; record types still carry
// the symbol so downstream consumers stay self-describing.
type Client interface {
	Name() string
	Ticker(ctx context.Context) (Ticker, error)
	OrderBook(ctx context.Context, depth int) (OrderBook, error)
	Candles(ctx context.Context, interval string, limit int) ([]Candle, error)
	Balance(ctx context.Context) (Balance, error)
	Positions(ctx context.Context) ([]Position, error)
	OpenOrders(ctx context.Context) ([]Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context) error
	Fills(ctx context.Context, since time.Time, limit int) ([]Fill, error)
	SetLeverage(ctx context.Context, leverage int) error
	SetPositionMode(ctx context.Context) error
}

// APIError carries the venue's envelope code and message so callers can
// log and branch on venue-reported failures.
type APIError struct {
	Venue   string
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Venue, e.Code, e.Message)
}

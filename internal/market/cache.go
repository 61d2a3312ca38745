package market

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"

	"go.uber.org/zap"
)

// Cache serves quotes from the stream when they are fresh and falls
// back to REST when they are not. A nil stream degrades to pure
// polling, which is how the bitunix venue runs.
type Cache struct {
	client exchange.Client
	log    *zap.Logger

	mu     sync.RWMutex
	ticker exchange.Ticker
	book   exchange.OrderBook
	closes []float64

	window int
	maxAge time.Duration
}

func New(client exchange.Client, log *zap.Logger) *Cache {
	return &Cache{
		client: client,
		log:    log,
		window: 20,
		maxAge: 5 * time.Second,
	}
}

// SetMaxAge adjusts how long streamed data is trusted before the
// cache polls again.
func (c *Cache) SetMaxAge(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.maxAge = d
	c.mu.Unlock()
}

func (c *Cache) SetTicker(t exchange.Ticker) {
	c.mu.Lock()
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	c.ticker = t
	c.mu.Unlock()
}

func (c *Cache) SetBook(b exchange.OrderBook) {
	c.mu.Lock()
	if b.Time.IsZero() {
		b.Time = time.Now()
	}
	c.book = b
	c.mu.Unlock()
}

// AppendClose feeds one confirmed candle close into the rolling
// volatility window.
func (c *Cache) AppendClose(close float64) {
	if close <= 0 {
		return
	}
	c.mu.Lock()
	c.closes = append(c.closes, close)
	if len(c.closes) > c.window {
		c.closes = c.closes[len(c.closes)-c.window:]
	}
	c.mu.Unlock()
}

func (c *Cache) Ticker(ctx context.Context) (exchange.Ticker, error) {
	c.mu.RLock()
	cached := c.ticker
	maxAge := c.maxAge
	c.mu.RUnlock()
	if !cached.Time.IsZero() && time.Since(cached.Time) <= maxAge {
		return cached, nil
	}
	fresh, err := c.client.Ticker(ctx)
	if err != nil {
		if !cached.Time.IsZero() {
			c.log.Warn("ticker refresh failed, serving stale", zap.Error(err))
			return cached, nil
		}
		return exchange.Ticker{}, err
	}
	c.SetTicker(fresh)
	return fresh, nil
}

func (c *Cache) Book(ctx context.Context, depth int) (exchange.OrderBook, error) {
	c.mu.RLock()
	cached := c.book
	maxAge := c.maxAge
	c.mu.RUnlock()
	if !cached.Time.IsZero() && time.Since(cached.Time) <= maxAge {
		return cached, nil
	}
	fresh, err := c.client.OrderBook(ctx, depth)
	if err != nil {
		if !cached.Time.IsZero() {
			c.log.Warn("book refresh failed, serving stale", zap.Error(err))
			return cached, nil
		}
		return exchange.OrderBook{}, err
	}
	c.SetBook(fresh)
	return fresh, nil
}

func (c *Cache) Mid(ctx context.Context) (float64, error) {
	t, err := c.Ticker(ctx)
	if err != nil {
		return 0, err
	}
	return t.Mid(), nil
}

// Volatility is the standard deviation of simple returns across the
// rolling close window.
func (c *Cache) Volatility() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return computeVolatility(c.closes)
}

// Age reports the age of the freshest cached market data, ticker or
// book. A REST-polled venue may only ever refresh the book, so either
// source counts. Nothing observed yet reads as infinitely old.
func (c *Cache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	newest := c.ticker.Time
	if c.book.Time.After(newest) {
		newest = c.book.Time
	}
	if newest.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return time.Since(newest)
}

func computeVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	var sum float64
	var sumSq float64
	var count float64
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		curr := closes[i]
		if prev == 0 {
			continue
		}
		r := (curr - prev) / prev
		sum += r
		sumSq += r * r
		count++
	}
	if count == 0 {
		return 0
	}
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

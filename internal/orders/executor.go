// Package orders places and reconciles the resting quote ladder.
// Placement is idempotent across restarts: every order carries a
// client ID, and the venue order ID it produced is persisted under
// that key so a crashed-and-restarted bot never doubles a quote.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/state"
)

const (
	retryAttempts = 5
	retryBackoff  = 200 * time.Millisecond

	cycleKey = "orders:cycle"
)

type Executor struct {
	client exchange.Client
	store  state.Store
	log    *zap.Logger

	mu          sync.Mutex
	cache       map[string]string
	tracked     map[string]struct{}
	cycle       uint64
	cycleLoaded bool
}

func NewExecutor(client exchange.Client, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		client:  client,
		store:   store,
		log:     log,
		cache:   make(map[string]string),
		tracked: make(map[string]struct{}),
	}
}

// Place submits one order. Requests without a client ID get one
// assigned; a request whose client ID was already placed returns the
// recorded venue order ID without touching the venue again.
func (e *Executor) Place(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	cacheKey := "cloid:" + req.ClientID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return exchange.Order{ID: oid, ClientID: req.ClientID}, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return exchange.Order{}, err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			return exchange.Order{ID: oid, ClientID: req.ClientID}, nil
		}
	}
	order, err := e.placeWithRetry(ctx, req)
	if err != nil {
		return exchange.Order{}, err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, order.ID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = order.ID
	e.mu.Unlock()
	return order, nil
}

func (e *Executor) Cancel(ctx context.Context, orderID string) error {
	return e.retry(ctx, func() error {
		return e.client.CancelOrder(ctx, orderID)
	})
}

// forget drops the recorded venue order ID for a client ID whose
// order no longer rests, so the key never blocks a future placement.
func (e *Executor) forget(ctx context.Context, clientID string) {
	if clientID == "" {
		return
	}
	key := "cloid:" + clientID
	e.mu.Lock()
	delete(e.cache, key)
	delete(e.tracked, clientID)
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.Delete(ctx, key); err != nil {
			e.log.Warn("failed to delete order id", zap.Error(err))
		}
	}
}

// CancelAllResting sweeps every open order and returns how many were
// resting before the sweep.
func (e *Executor) CancelAllResting(ctx context.Context) (int, error) {
	open, err := e.client.OpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}
	if len(open) == 0 {
		return 0, nil
	}
	if err := e.retry(ctx, func() error { return e.client.CancelAll(ctx) }); err != nil {
		return 0, err
	}
	for _, o := range open {
		e.forget(ctx, o.ClientID)
	}
	return len(open), nil
}

func (e *Executor) loadCycle(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	if e.cycleLoaded {
		c := e.cycle
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()
	var c uint64
	if e.store != nil {
		raw, ok, err := e.store.Get(ctx, cycleKey)
		if err != nil {
			return 0, err
		}
		if ok {
			if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
				c = parsed
			}
		}
	}
	e.mu.Lock()
	e.cycle = c
	e.cycleLoaded = true
	e.mu.Unlock()
	return c, nil
}

func (e *Executor) bumpCycle(ctx context.Context) {
	e.mu.Lock()
	e.cycle++
	c := e.cycle
	e.mu.Unlock()
	if e.store != nil {
		if err := e.store.Set(ctx, cycleKey, strconv.FormatUint(c, 10)); err != nil {
			e.log.Warn("failed to persist quote cycle", zap.Error(err))
		}
	}
}

func (e *Executor) placeWithRetry(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	var order exchange.Order
	err := e.retry(ctx, func() error {
		var err error
		order, err = e.client.PlaceOrder(ctx, req)
		return err
	})
	if err != nil {
		return exchange.Order{}, err
	}
	if order.ID == "" {
		return exchange.Order{}, errors.New("empty order id")
	}
	return order, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := retryBackoff
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == retryAttempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

package data

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/state"

	"go.uber.org/zap"
)

// refreshTail is how many recent bars a warm refresh asks for; the
// overlap is deduplicated against what is already held.
const refreshTail = 50

// History holds the rolling candle window the feature pipeline reads.
// A warm start loads the persisted cache instead of refetching the
// whole lookback when the cache is recent enough.
type History struct {
	client   exchange.Client
	store    state.Store
	log      *zap.Logger
	key      string
	interval string
	capacity int

	mu      sync.RWMutex
	candles []exchange.Candle
}

func NewHistory(client exchange.Client, store state.Store, venue, symbol, interval string, capacity int, log *zap.Logger) *History {
	if capacity <= 0 {
		capacity = 700
	}
	return &History{
		client:   client,
		store:    store,
		log:      log,
		key:      state.CandleKey(venue, symbol, interval),
		interval: interval,
		capacity: capacity,
	}
}

// Warm fills the window, preferring the persisted cache when its
// newest bar is within two intervals of now.
func (h *History) Warm(ctx context.Context) error {
	if cached, _, ok := state.LoadCandles(ctx, h.store, h.key); ok && len(cached) > 0 {
		newest := time.UnixMilli(cached[len(cached)-1].TimeMS)
		if time.Since(newest) <= 2*intervalDuration(h.interval) {
			h.mu.Lock()
			h.candles = fromRecords(cached, h.capacity)
			h.mu.Unlock()
			h.log.Info("candle cache warm",
				zap.Int("candles", len(cached)),
				zap.Time("newest", newest))
			return h.Refresh(ctx)
		}
	}
	candles, err := h.client.Candles(ctx, h.interval, h.capacity)
	if err != nil {
		return fmt.Errorf("cold candle fetch: %w", err)
	}
	h.mu.Lock()
	h.candles = trim(candles, h.capacity)
	h.mu.Unlock()
	h.persist(ctx)
	return nil
}

// Refresh pulls the recent tail and merges it in, deduplicating on
// bar start time. New bars replace same-time bars so a still-forming
// final bar gets corrected by the next poll.
func (h *History) Refresh(ctx context.Context) error {
	limit := refreshTail
	h.mu.RLock()
	if len(h.candles) == 0 {
		limit = h.capacity
	}
	h.mu.RUnlock()

	fresh, err := h.client.Candles(ctx, h.interval, limit)
	if err != nil {
		return fmt.Errorf("candle refresh: %w", err)
	}
	h.merge(fresh)
	h.persist(ctx)
	return nil
}

// Append merges one confirmed bar from the stream.
func (h *History) Append(c exchange.Candle) {
	if c.Time.IsZero() {
		return
	}
	h.merge([]exchange.Candle{c})
}

func (h *History) merge(fresh []exchange.Candle) {
	if len(fresh) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	byTime := make(map[int64]exchange.Candle, len(h.candles)+len(fresh))
	for _, c := range h.candles {
		byTime[c.Time.UnixMilli()] = c
	}
	for _, c := range fresh {
		byTime[c.Time.UnixMilli()] = c
	}
	merged := make([]exchange.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	h.candles = trim(merged, h.capacity)
}

func (h *History) persist(ctx context.Context) {
	h.mu.RLock()
	records := toRecords(h.candles)
	h.mu.RUnlock()
	if err := state.SaveCandles(ctx, h.store, h.key, records); err != nil {
		h.log.Warn("candle cache persist failed", zap.Error(err))
	}
}

// Candles returns a copy of the window in ascending time order.
func (h *History) Candles() []exchange.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]exchange.Candle, len(h.candles))
	copy(out, h.candles)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.candles)
}

func (h *History) Last() (exchange.Candle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.candles) == 0 {
		return exchange.Candle{}, false
	}
	return h.candles[len(h.candles)-1], true
}

func trim(candles []exchange.Candle, capacity int) []exchange.Candle {
	if len(candles) <= capacity {
		return candles
	}
	return candles[len(candles)-capacity:]
}

func toRecords(candles []exchange.Candle) []state.CandleRecord {
	records := make([]state.CandleRecord, 0, len(candles))
	for _, c := range candles {
		records = append(records, state.CandleRecord{
			TimeMS: c.Time.UnixMilli(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return records
}

func fromRecords(records []state.CandleRecord, capacity int) []exchange.Candle {
	candles := make([]exchange.Candle, 0, len(records))
	for _, r := range records {
		candles = append(candles, exchange.Candle{
			Time:   time.UnixMilli(r.TimeMS),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return trim(candles, capacity)
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

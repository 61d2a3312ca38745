package state

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// CandleRecord is the persisted shape of one ohlcv bar. Times are
// stored as unix milliseconds so the cache is portable across hosts.
type CandleRecord struct {
	TimeMS int64   `msgpack:"t"`
	Open   float64 `msgpack:"o"`
	High   float64 `msgpack:"h"`
	Low    float64 `msgpack:"l"`
	Close  float64 `msgpack:"c"`
	Volume float64 `msgpack:"v"`
}

type candleCache struct {
	SavedAtMS int64          `msgpack:"saved_at_ms"`
	Candles   []CandleRecord `msgpack:"candles"`
}

func CandleKey(venue, symbol, interval string) string {
	return "candles:" + venue + ":" + symbol + ":" + interval
}

func SaveCandles(ctx context.Context, store Store, key string, candles []CandleRecord) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(candleCache{
		SavedAtMS: time.Now().UnixMilli(),
		Candles:   candles,
	})
	if err != nil {
		return err
	}
	return store.Set(ctx, key, base64.StdEncoding.EncodeToString(payload))
}

// LoadCandles returns the cached bars and when they were saved. A
// missing or undecodable cache reports not-found rather than an
// error so callers fall back to a cold fetch.
func LoadCandles(ctx context.Context, store Store, key string) ([]CandleRecord, time.Time, bool) {
	if store == nil {
		return nil, time.Time{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return nil, time.Time{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, time.Time{}, false
	}
	var cache candleCache
	if err := msgpack.Unmarshal(payload, &cache); err != nil {
		return nil, time.Time{}, false
	}
	return cache.Candles, time.UnixMilli(cache.SavedAtMS), true
}

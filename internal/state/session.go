package state

import (
	"context"
	"encoding/base64"

	"github.com/vmihailenco/msgpack/v5"
)

const SessionSnapshotKey = "session:snapshot"

// SessionSnapshot carries the pnl counters that must survive a
// restart. Daily figures reset when DailyDate moves past the stored
// UTC day.
type SessionSnapshot struct {
	RealizedPnL    float64 `msgpack:"realized_pnl"`
	DailyPnL       float64 `msgpack:"daily_pnl"`
	DailyDate      string  `msgpack:"daily_date"`
	TotalVolume    float64 `msgpack:"total_volume"`
	TotalFees      float64 `msgpack:"total_fees"`
	MatchedTrades  int     `msgpack:"matched_trades"`
	RebalanceCount int     `msgpack:"rebalance_count"`
	StartedAtMS    int64   `msgpack:"started_at_ms"`
	LastTradeID    string  `msgpack:"last_trade_id"`
}

func LoadSessionSnapshot(ctx context.Context, store Store) (SessionSnapshot, bool, error) {
	if store == nil {
		return SessionSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, SessionSnapshotKey)
	if err != nil {
		return SessionSnapshot{}, false, err
	}
	if !ok || raw == "" {
		return SessionSnapshot{}, false, nil
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return SessionSnapshot{}, false, err
	}
	var snapshot SessionSnapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return SessionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveSessionSnapshot(ctx context.Context, store Store, snapshot SessionSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionSnapshotKey, base64.StdEncoding.EncodeToString(payload))
}

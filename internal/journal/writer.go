// Package journal streams fills, order events and quote snapshots
// into TimescaleDB for offline analysis. Writes are best-effort:
// enqueueing never blocks the trading loop, and a full queue drops
// the record and counts the drop.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

const (
	writeTimeout      = 3 * time.Second
	closeDrainTimeout = 5 * time.Second
)

// OrderEvent records one order lifecycle action.
type OrderEvent struct {
	Time     time.Time
	Symbol   string
	Action   string
	OrderID  string
	ClientID string
	Side     string
	Price    float64
	Qty      float64
}

// QuoteSnapshot records one quoting cycle's context.
type QuoteSnapshot struct {
	Time        time.Time
	Symbol      string
	State       string
	Mid         float64
	SpreadPct   float64
	Signal      string
	Confidence  float64
	PositionUSD float64
	RealizedPnL float64
	DailyPnL    float64
	OpenOrders  int
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	fills     chan exchange.Fill
	events    chan OrderEvent
	snapshots chan QuoteSnapshot
	started   atomic.Bool
	dropped   atomic.Uint64
}

// New connects and prepares the journal tables. A disabled config
// returns (nil, nil); every method is safe on a nil writer so callers
// do not branch.
func New(cfg config.JournalConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("journal dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	w := &Writer{
		db:        db,
		log:       log,
		fills:     make(chan exchange.Fill, size),
		events:    make(chan OrderEvent, size),
		snapshots: make(chan QuoteSnapshot, size),
	}
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Close flushes whatever is still buffered before closing the
// database. The run goroutine shares the app's context and has
// usually exited by shutdown, so buffered records would otherwise
// be lost.
func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeDrainTimeout)
	defer cancel()
	w.drain(ctx)
	return w.db.Close()
}

func (w *Writer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case fill := <-w.fills:
			w.writeFill(ctx, fill)
		case ev := <-w.events:
			w.writeOrderEvent(ctx, ev)
		case snap := <-w.snapshots:
			w.writeSnapshot(ctx, snap)
		default:
			return
		}
	}
}

// Dropped is the count of records discarded because a queue was full.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) EnqueueFill(fill exchange.Fill) {
	if w == nil {
		return
	}
	select {
	case w.fills <- fill:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal queue full, dropping records")
		}
	}
}

func (w *Writer) EnqueueOrderEvent(ev OrderEvent) {
	if w == nil {
		return
	}
	select {
	case w.events <- ev:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal queue full, dropping records")
		}
	}
}

func (w *Writer) EnqueueSnapshot(snap QuoteSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- snap:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("journal queue full, dropping records")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill := <-w.fills:
			w.writeFill(ctx, fill)
		case ev := <-w.events:
			w.writeOrderEvent(ctx, ev)
		case snap := <-w.snapshots:
			w.writeSnapshot(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS fills (
		ts TIMESTAMPTZ NOT NULL,
		trade_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, trade_id)
	)`); err != nil {
		return err
	}
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS order_events (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		order_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		qty DOUBLE PRECISION NOT NULL
	)`); err != nil {
		return err
	}
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS quote_snapshots (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		state TEXT NOT NULL,
		mid DOUBLE PRECISION NOT NULL,
		spread_pct DOUBLE PRECISION NOT NULL,
		signal TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		position_usd DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		daily_pnl DOUBLE PRECISION NOT NULL,
		open_orders INTEGER NOT NULL
	)`); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescaledb extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, table := range []string{"fills", "order_events", "quote_snapshots"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", table)); err != nil && w.log != nil {
			w.log.Warn("hypertable create failed",
				zap.String("table", table),
				zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeFill(ctx context.Context, fill exchange.Fill) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO fills (
		ts, trade_id, order_id, symbol, side, qty, price, fee
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	) ON CONFLICT (ts, trade_id) DO NOTHING`,
		fill.Time, fill.TradeID, fill.OrderID, fill.Symbol,
		fill.Side, fill.Qty, fill.Price, fill.Fee,
	)
	if err != nil && w.log != nil {
		w.log.Warn("journal fill insert failed", zap.Error(err))
	}
}

func (w *Writer) writeOrderEvent(ctx context.Context, ev OrderEvent) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO order_events (
		ts, symbol, action, order_id, client_id, side, price, qty
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)`,
		ev.Time, ev.Symbol, ev.Action, ev.OrderID,
		ev.ClientID, ev.Side, ev.Price, ev.Qty,
	)
	if err != nil && w.log != nil {
		w.log.Warn("journal order event insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSnapshot(ctx context.Context, snap QuoteSnapshot) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, `INSERT INTO quote_snapshots (
		ts, symbol, state, mid, spread_pct, signal, confidence,
		position_usd, realized_pnl, daily_pnl, open_orders
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`,
		snap.Time, snap.Symbol, snap.State, snap.Mid, snap.SpreadPct,
		snap.Signal, snap.Confidence, snap.PositionUSD,
		snap.RealizedPnL, snap.DailyPnL, snap.OpenOrders,
	)
	if err != nil && w.log != nil {
		w.log.Warn("journal snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

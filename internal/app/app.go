package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/alerts"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/book"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/data"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange/bitunix"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange/bybit"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange/paper"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/journal"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/market"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/metrics"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/orders"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/pnl"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/position"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/signal"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/state"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/state/sqlite"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/strategy"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/ws"
)

const (
	paperStartingBalance = 10_000
	fillLookback         = 5 * time.Minute
	fillPageSize         = 100
	// market data older than this many refresh intervals halts quoting
	staleFactor = 3
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    state.Store
	client   exchange.Client
	paper    *paper.Venue
	stream   *bybit.Stream
	market   *market.Cache
	history  *data.History
	engine   *signal.Engine
	tracker  *pnl.Tracker
	position *position.Manager
	executor *orders.Executor
	machine  *strategy.StateMachine
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	alerts   *alerts.Telegram
	journal  *journal.Writer

	// opsMu covers everything the operator goroutine reads or writes
	opsMu          sync.RWMutex
	paused         bool
	totalLossHalt  bool
	haltReason     string
	operatorWarned bool
	lastRead       signal.Read
	openOrders     int

	lastSpread   float64
	lastFillAt   time.Time
	journalDrops uint64
	wsReconnects int
	utcDay       string

	lastData     time.Time
	lastSignal   time.Time
	lastPosition time.Time
	lastStats    time.Time
	lastRecap    time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.State.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	client, paperVenue, stream, err := buildVenue(cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	cache := market.New(client, log)
	cache.SetMaxAge(cfg.Strategy.OrderRefreshInterval)

	history := data.NewHistory(client, store, client.Name(), cfg.Exchange.Symbol,
		cfg.Data.CandleInterval, cfg.Data.Lookback+cfg.Data.Warmup, log)

	engine, err := signal.NewEngine(cfg.Model, log)
	if err != nil {
		// a broken model never blocks quoting: run neutral
		log.Warn("model unavailable, running without signal", zap.Error(err))
		engine, _ = signal.NewEngine(config.ModelConfig{Enabled: false}, log)
	}

	journalWriter, err := journal.New(cfg.Journal, log)
	if err != nil {
		log.Warn("journal unavailable, running without it", zap.Error(err))
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		client:   client,
		paper:    paperVenue,
		stream:   stream,
		market:   cache,
		history:  history,
		engine:   engine,
		tracker:  pnl.NewTracker(store, log),
		position: position.NewManager(client, cfg.Risk, cfg.Exchange.Symbol, log),
		executor: orders.NewExecutor(client, store, log),
		machine:  strategy.NewStateMachine(),
		metrics:  m,
		prom:     prom,
		alerts:   alerts.NewTelegram(cfg.Telegram, log),
		journal:  journalWriter,
		lastRead: signal.Read{Signal: signal.Neutral},
	}
	if stream != nil {
		stream.OnTicker(func(t exchange.Ticker) {
			cache.SetTicker(t)
			if paperVenue != nil {
				paperVenue.Mark(t.Mid())
			}
		})
		stream.OnBook(cache.SetBook)
		stream.OnCandle(func(c exchange.Candle) {
			history.Append(c)
			cache.AppendClose(c.Close)
		})
	}
	return a, nil
}

func buildVenue(cfg *config.Config, log *zap.Logger) (exchange.Client, *paper.Venue, *bybit.Stream, error) {
	symbol := cfg.Exchange.Symbol
	switch cfg.Exchange.Venue {
	case "bybit":
		key := os.Getenv("BYBIT_API_KEY")
		secret := os.Getenv("BYBIT_API_SECRET")
		if key == "" || secret == "" {
			return nil, nil, nil, errors.New("BYBIT_API_KEY and BYBIT_API_SECRET are required")
		}
		client := bybit.New(bybitBaseURL(cfg), symbol, key, secret,
			cfg.Exchange.RecvWindowMS, cfg.Exchange.Timeout, log)
		return client, nil, newBybitStream(cfg, log), nil
	case "bitunix":
		key := os.Getenv("BITUNIX_API_KEY")
		secret := os.Getenv("BITUNIX_API_SECRET")
		if key == "" || secret == "" {
			return nil, nil, nil, errors.New("BITUNIX_API_KEY and BITUNIX_API_SECRET are required")
		}
		baseURL := cfg.Exchange.BaseURL
		if baseURL == "" {
			baseURL = bitunix.MainnetBaseURL
		}
		client := bitunix.New(baseURL, symbol, key, secret, cfg.Exchange.Timeout, log)
		return client, nil, nil, nil
	case "paper":
		// public bybit data feeds the simulator; no credentials needed
		feed := bybit.New(bybitBaseURL(cfg), symbol, "", "",
			cfg.Exchange.RecvWindowMS, cfg.Exchange.Timeout, log)
		venue := paper.New(feed, symbol, paperStartingBalance,
			cfg.Risk.MakerFeePct, cfg.Risk.TakerFeePct, log)
		return venue, venue, newBybitStream(cfg, log), nil
	default:
		return nil, nil, nil, fmt.Errorf("exchange.venue %q is not supported", cfg.Exchange.Venue)
	}
}

func bybitBaseURL(cfg *config.Config) string {
	if cfg.Exchange.BaseURL != "" {
		return cfg.Exchange.BaseURL
	}
	if cfg.Exchange.Testnet {
		return bybit.TestnetBaseURL
	}
	return bybit.MainnetBaseURL
}

func newBybitStream(cfg *config.Config, log *zap.Logger) *bybit.Stream {
	url := cfg.Exchange.WSURL
	if url == "" {
		if cfg.Exchange.Testnet {
			url = bybit.TestnetWSURL
		} else {
			url = bybit.MainnetWSURL
		}
	}
	wsClient := ws.New(url, cfg.Exchange.ReconnectDelay, cfg.Exchange.PingInterval,
		bybit.PingFrame, log)
	return bybit.NewStream(wsClient, cfg.Exchange.Symbol, cfg.Data.CandleInterval, 50, log)
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.journal.Close()

	if err := a.startup(ctx); err != nil {
		return err
	}
	defer a.shutdown()

	ticker := time.NewTicker(a.cfg.Strategy.OrderRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.log.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

func (a *App) startup(ctx context.Context) error {
	if _, err := a.machine.Apply(strategy.EventStart); err != nil {
		return err
	}
	if err := a.client.SetPositionMode(ctx); err != nil {
		a.log.Warn("set position mode failed", zap.Error(err))
	}
	if err := a.client.SetLeverage(ctx, a.cfg.Risk.Leverage); err != nil {
		a.log.Warn("set leverage failed", zap.Error(err))
	}
	if err := a.tracker.Restore(ctx); err != nil {
		a.log.Warn("session restore failed", zap.Error(err))
	}
	if a.stream != nil {
		if err := a.stream.Start(ctx); err != nil {
			a.log.Warn("market stream unavailable, REST fallback only", zap.Error(err))
		}
	}
	if err := a.history.Warm(ctx); err != nil {
		return fmt.Errorf("warm candle history: %w", err)
	}
	for _, c := range a.history.Candles() {
		a.market.AppendClose(c.Close)
	}
	if swept, err := a.executor.CancelAllResting(ctx); err != nil {
		a.log.Warn("startup order sweep failed", zap.Error(err))
	} else if swept > 0 {
		a.log.Info("swept leftover orders", zap.Int("count", swept))
	}
	if _, err := a.position.Refresh(ctx); err != nil {
		a.log.Warn("initial position fetch failed", zap.Error(err))
	}
	a.journal.Start(ctx)
	a.startMetricsServer(ctx)
	a.startOperator(ctx)
	a.lastFillAt = time.Now().Add(-fillLookback)

	if _, err := a.machine.Apply(strategy.EventWarmed); err != nil {
		return err
	}
	a.log.Info("quoting started",
		zap.String("venue", a.client.Name()),
		zap.String("symbol", a.cfg.Exchange.Symbol),
		zap.Int("candles", a.history.Len()))
	return nil
}

func (a *App) shutdown() {
	// the run context is gone by now; give cleanup its own deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.machine.Apply(strategy.EventStop); err != nil {
		a.log.Warn("stop transition failed", zap.Error(err))
	}
	if swept, err := a.executor.CancelAllResting(ctx); err != nil {
		a.log.Warn("shutdown order sweep failed", zap.Error(err))
	} else if swept > 0 {
		a.log.Info("canceled resting orders", zap.Int("count", swept))
	}
	if a.cfg.Risk.CloseOnExit {
		if err := a.position.EmergencyCloseAll(ctx, a.cfg.Strategy.AmountPrecision); err != nil {
			a.log.Error("exit close failed", zap.Error(err))
		}
	}
	if err := a.tracker.Persist(ctx); err != nil {
		a.log.Warn("final session persist failed", zap.Error(err))
	}
	recap := a.tracker.Recap()
	a.log.Info("session recap", zap.String("recap", recap))
	if err := a.alerts.Send(ctx, "shutting down\n"+recap); err != nil {
		a.log.Warn("shutdown alert failed", zap.Error(err))
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Listen))
}

func (a *App) tick(ctx context.Context) error {
	now := time.Now()

	if now.Sub(a.lastData) >= a.cfg.Data.UpdateInterval {
		a.lastData = now
		if err := a.history.Refresh(ctx); err != nil {
			a.log.Warn("candle refresh failed", zap.Error(err))
		} else if last, ok := a.history.Last(); ok {
			a.market.AppendClose(last.Close)
		}
	}
	if now.Sub(a.lastSignal) >= a.cfg.Model.UpdateInterval {
		a.lastSignal = now
		read := a.engine.Update(a.history.Candles())
		a.setLastRead(read)
		a.metrics.SignalConfidence.Set(read.Confidence)
	}
	if now.Sub(a.lastPosition) >= a.cfg.Intervals.PositionCheck {
		a.lastPosition = now
		if err := a.checkPosition(ctx); err != nil {
			a.log.Warn("position check failed", zap.Error(err))
		}
	}
	if now.Sub(a.lastStats) >= a.cfg.Intervals.StatsLog {
		a.lastStats = now
		a.refreshFills(ctx)
		a.publishStats()
		if day := now.UTC().Format("2006-01-02"); day != a.utcDay {
			if a.utcDay != "" {
				if err := a.alerts.Send(ctx, "new UTC day, daily PnL reset\n"+a.tracker.Recap()); err != nil {
					a.log.Warn("rollover alert failed", zap.Error(err))
				}
			}
			a.utcDay = day
		}
	}
	if now.Sub(a.lastRecap) >= a.cfg.Intervals.SessionRecap {
		a.lastRecap = now
		if err := a.alerts.Send(ctx, a.tracker.Recap()); err != nil {
			a.log.Warn("recap alert failed", zap.Error(err))
		}
	}

	if err := a.safetyCheck(ctx); err != nil {
		return err
	}
	if a.machine.State() != strategy.StateQuoting || a.isPaused() {
		return nil
	}
	return a.quote(ctx)
}

func (a *App) checkPosition(ctx context.Context) error {
	snap, err := a.position.Refresh(ctx)
	if err != nil {
		return err
	}
	a.metrics.PositionUSD.Set(snap.NotionalUSD)
	if snap.Risk == position.RiskCritical {
		a.log.Error("liquidation imminent, closing position",
			zap.Float64("distance_pct", snap.LiqDistance*100))
		a.halt(ctx, "liquidation risk critical")
		if err := a.position.EmergencyCloseAll(ctx, a.cfg.Strategy.AmountPrecision); err != nil {
			return err
		}
		return a.alerts.Send(ctx, fmt.Sprintf("EMERGENCY CLOSE: liquidation %.1f%% away", snap.LiqDistance*100))
	}
	if a.machine.State() != strategy.StateQuoting || !a.position.NeedsRebalance() {
		return nil
	}
	if _, err := a.machine.Apply(strategy.EventRebalanceNeeded); err != nil {
		return err
	}
	rebErr := a.position.Rebalance(ctx, a.cfg.Strategy.AmountPrecision, a.cfg.Strategy.MinAmount)
	if _, err := a.machine.Apply(strategy.EventRebalanced); err != nil {
		a.log.Warn("rebalance transition failed", zap.Error(err))
	}
	if rebErr != nil {
		return rebErr
	}
	a.tracker.RecordRebalance()
	a.metrics.Rebalances.Inc()
	if err := a.alerts.Send(ctx, fmt.Sprintf("rebalanced: position was %.2f USD", snap.NotionalUSD)); err != nil {
		a.log.Warn("rebalance alert failed", zap.Error(err))
	}
	return nil
}

func (a *App) refreshFills(ctx context.Context) {
	fills, err := a.client.Fills(ctx, a.lastFillAt.Add(-time.Minute), fillPageSize)
	if err != nil {
		a.log.Warn("fill fetch failed", zap.Error(err))
		return
	}
	if len(fills) == 0 {
		return
	}
	a.lastFillAt = time.Now()
	realized, matched := a.tracker.Ingest(ctx, fills)
	a.metrics.Fills.Add(float64(len(fills)))
	for _, f := range fills {
		a.journal.EnqueueFill(f)
	}
	if matched > 0 {
		a.log.Info("pnl realized",
			zap.Float64("realized", realized),
			zap.Int("matched", matched))
	}
}

func (a *App) publishStats() {
	stats := a.tracker.Stats()
	pos := a.position.Current()
	read := a.getLastRead()
	open := a.getOpenOrders()
	a.metrics.RealizedPnL.Set(stats.RealizedPnL)
	a.metrics.DailyPnL.Set(stats.DailyPnL)
	a.metrics.OpenOrders.Set(float64(open))
	if dropped := a.journal.Dropped(); dropped > a.journalDrops {
		a.metrics.JournalDrops.Add(float64(dropped - a.journalDrops))
		a.journalDrops = dropped
	}
	if a.stream != nil {
		if n := a.stream.Reconnects(); n > a.wsReconnects {
			a.metrics.WSReconnects.Add(float64(n - a.wsReconnects))
			a.wsReconnects = n
		}
	}
	a.log.Info("stats",
		zap.String("state", string(a.machine.State())),
		zap.Float64("realized_pnl", stats.RealizedPnL),
		zap.Float64("daily_pnl", stats.DailyPnL),
		zap.Float64("position_usd", pos.NotionalUSD),
		zap.Float64("volume", stats.TotalVolume),
		zap.Int("matched", stats.MatchedTrades),
		zap.Int("open_orders", open),
		zap.String("signal", string(read.Signal)),
		zap.Float64("confidence", read.Confidence))
	if a.paper != nil {
		ps := a.paper.Stats()
		a.log.Info("paper session",
			zap.Float64("venue_realized", ps.RealizedPnL),
			zap.Float64("equity", ps.Equity),
			zap.Float64("peak_equity", ps.PeakEquity),
			zap.Float64("low_equity", ps.LowEquity),
			zap.Float64("max_drawdown", ps.MaxDrawdown),
			zap.Int("fills", ps.Fills))
	}
	if a.cfg.Dashboard.Enabled {
		if err := a.writeDashboard(stats, pos); err != nil {
			a.log.Warn("dashboard write failed", zap.Error(err))
		}
	}
	a.journal.EnqueueSnapshot(journal.QuoteSnapshot{
		Time:        time.Now().UTC(),
		Symbol:      a.cfg.Exchange.Symbol,
		State:       string(a.machine.State()),
		Mid:         pos.MarkPrice,
		SpreadPct:   a.lastSpread,
		Signal:      string(read.Signal),
		Confidence:  read.Confidence,
		PositionUSD: pos.NotionalUSD,
		RealizedPnL: stats.RealizedPnL,
		DailyPnL:    stats.DailyPnL,
		OpenOrders:  open,
	})
}

// safetyCheck gates every cycle on the configured limits. A breach
// cancels all orders and halts; a daily-loss halt clears itself once
// the UTC day rolls over, a total-loss halt also closes the position
// and stays down until restart.
func (a *App) safetyCheck(ctx context.Context) error {
	stats := a.tracker.Stats()
	pos := a.position.Current()
	snap := strategy.Snapshot{
		RealizedPnL:    stats.RealizedPnL,
		DailyPnL:       stats.DailyPnL,
		PositionUSD:    pos.NotionalUSD,
		Leverage:       float64(a.cfg.Risk.Leverage),
		OpenOrderCount: a.getOpenOrders(),
		LiqDistance:    pos.LiqDistance,
		HasLiqDistance: pos.Qty != 0,
		DataAge:        a.market.Age(),
	}
	maxAge := time.Duration(staleFactor) * a.cfg.Strategy.OrderRefreshInterval
	err := strategy.CheckLimits(a.cfg.Risk, snap, maxAge)

	if a.machine.State() == strategy.StateHalted {
		if err == nil && !a.isTotalLossHalt() {
			if _, applyErr := a.machine.Apply(strategy.EventResume); applyErr == nil {
				a.setHaltReason("")
				a.log.Info("halt cleared, resuming")
				if sendErr := a.alerts.Send(ctx, "halt cleared, quoting resumed"); sendErr != nil {
					a.log.Warn("resume alert failed", zap.Error(sendErr))
				}
			}
		}
		return nil
	}
	if err == nil {
		return nil
	}

	a.log.Error("safety limit breached", zap.Error(err))
	a.halt(ctx, err.Error())
	if errors.Is(err, strategy.ErrTotalLoss) {
		a.setTotalLossHalt()
		if closeErr := a.position.EmergencyCloseAll(ctx, a.cfg.Strategy.AmountPrecision); closeErr != nil {
			a.log.Error("emergency close failed", zap.Error(closeErr))
		}
	}
	if sendErr := a.alerts.Send(ctx, "HALT: "+err.Error()); sendErr != nil {
		a.log.Warn("halt alert failed", zap.Error(sendErr))
	}
	return nil
}

func (a *App) halt(ctx context.Context, reason string) {
	if swept, err := a.executor.CancelAllResting(ctx); err != nil {
		a.log.Warn("halt order sweep failed", zap.Error(err))
	} else {
		a.metrics.OrdersCanceled.Add(float64(swept))
	}
	a.setOpenOrders(0)
	if _, err := a.machine.Apply(strategy.EventHalt); err != nil {
		a.log.Warn("halt transition failed", zap.Error(err))
		return
	}
	a.setHaltReason(reason)
	a.metrics.Halts.Inc()
}

func (a *App) quote(ctx context.Context) error {
	b, err := a.market.Book(ctx, 10)
	if err != nil {
		return fmt.Errorf("order book: %w", err)
	}
	m, err := book.SpreadMetrics(b)
	if err != nil {
		return fmt.Errorf("book metrics: %w", err)
	}
	spread := book.OptimalSpread(m, a.market.Volatility(),
		a.cfg.Strategy.MinSpreadPct, a.cfg.Strategy.MaxSpreadPct,
		a.cfg.Strategy.TargetSpreadMultiplier)
	pos := a.position.Current()
	quotes, err := strategy.BuildQuotes(a.cfg.Strategy, strategy.QuoteParams{
		Symbol:      a.cfg.Exchange.Symbol,
		Mid:         m.Mid,
		SpreadPct:   spread,
		Signal:      a.getLastRead(),
		PositionUSD: pos.NotionalUSD,
	})
	if err != nil {
		return err
	}
	res, err := a.executor.Reconcile(ctx, quotes, a.cfg.Strategy, a.cfg.Risk.CrowdFactor)
	if err != nil {
		return err
	}
	a.lastSpread = spread
	a.metrics.SpreadPct.Set(spread)
	a.metrics.OrdersPlaced.Add(float64(res.Placed))
	a.metrics.OrdersCanceled.Add(float64(res.Canceled))
	a.metrics.OrdersFailed.Add(float64(res.Failed))
	if res.CrowdSkipped {
		a.setOpenOrders(0)
		return nil
	}
	a.setOpenOrders(res.Kept + res.Placed)
	for _, q := range quotes {
		a.journal.EnqueueOrderEvent(journal.OrderEvent{
			Time:     time.Now().UTC(),
			Symbol:   q.Symbol,
			Action:   "quote",
			ClientID: q.ClientID,
			Side:     q.Side,
			Price:    q.Price,
			Qty:      q.Qty,
		})
	}
	return nil
}

func (a *App) setHaltReason(reason string) {
	a.opsMu.Lock()
	a.haltReason = reason
	a.opsMu.Unlock()
}

func (a *App) getHaltReason() string {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.haltReason
}

func (a *App) setTotalLossHalt() {
	a.opsMu.Lock()
	a.totalLossHalt = true
	a.opsMu.Unlock()
}

func (a *App) isTotalLossHalt() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.totalLossHalt
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}

func (a *App) setOpenOrders(n int) {
	a.opsMu.Lock()
	a.openOrders = n
	a.opsMu.Unlock()
}

func (a *App) getOpenOrders() int {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.openOrders
}

func (a *App) setLastRead(r signal.Read) {
	a.opsMu.Lock()
	a.lastRead = r
	a.opsMu.Unlock()
}

func (a *App) getLastRead() signal.Read {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.lastRead
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

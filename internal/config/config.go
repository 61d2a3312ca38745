package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Profile   string          `yaml:"profile"`
	Log       LoggingConfig   `yaml:"log"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Model     ModelConfig     `yaml:"model"`
	Data      DataConfig      `yaml:"data"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	State     StateConfig     `yaml:"state"`
	Journal   JournalConfig   `yaml:"journal"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type ExchangeConfig struct {
	Venue          string        `yaml:"venue"`
	Symbol         string        `yaml:"symbol"`
	Testnet        bool          `yaml:"testnet"`
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	WSURL          string        `yaml:"ws_url"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	RecvWindowMS   int64         `yaml:"recv_window_ms"`
}

type StrategyConfig struct {
	NumOrders              int           `yaml:"num_orders"`
	MinSpreadPct           float64       `yaml:"min_spread_pct"`
	MaxSpreadPct           float64       `yaml:"max_spread_pct"`
	TargetSpreadMultiplier float64       `yaml:"target_spread_multiplier"`
	OrderRefreshInterval   time.Duration `yaml:"order_refresh_interval"`
	PriceTolerancePct      float64       `yaml:"price_tolerance_pct"`
	BatchSize              int           `yaml:"batch_size"`
	BatchPause             time.Duration `yaml:"batch_pause"`
	BaseOrderUSD           float64       `yaml:"base_order_usd"`
	MinOrderUSD            float64       `yaml:"min_order_usd"`
	MaxOrderUSD            float64       `yaml:"max_order_usd"`
	SkewThresholdUSD       float64       `yaml:"skew_threshold_usd"`
	PricePrecision         int           `yaml:"price_precision"`
	AmountPrecision        int           `yaml:"amount_precision"`
	MinAmount              float64       `yaml:"min_amount"`
	MinNotionalUSD         float64       `yaml:"min_notional_usd"`
}

type RiskConfig struct {
	Leverage              int     `yaml:"leverage"`
	MaxLeverage           int     `yaml:"max_leverage"`
	MaxPositionUSD        float64 `yaml:"max_position_usd"`
	RebalanceThresholdUSD float64 `yaml:"rebalance_threshold_usd"`
	RebalanceFraction     float64 `yaml:"rebalance_fraction"`
	MaxDailyLossUSD       float64 `yaml:"max_daily_loss_usd"`
	MaxTotalLossUSD       float64 `yaml:"max_total_loss_usd"`
	MaxOpenOrders         int     `yaml:"max_open_orders"`
	CrowdFactor           float64 `yaml:"crowd_factor"`
	MakerFeePct           float64 `yaml:"maker_fee_pct"`
	TakerFeePct           float64 `yaml:"taker_fee_pct"`
	MaintenanceMarginPct  float64 `yaml:"maintenance_margin_pct"`
	CloseOnExit           bool    `yaml:"close_on_exit"`
}

type ModelConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Path                string        `yaml:"path"`
	ScalerPath          string        `yaml:"scaler_path"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	ThresholdHigh       float64       `yaml:"threshold_high"`
	ThresholdLow        float64       `yaml:"threshold_low"`
	UpdateInterval      time.Duration `yaml:"update_interval"`
}

type DataConfig struct {
	CandleInterval string        `yaml:"candle_interval"`
	Lookback       int           `yaml:"lookback"`
	Warmup         int           `yaml:"warmup"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type IntervalsConfig struct {
	PositionCheck time.Duration `yaml:"position_check"`
	StatsLog      time.Duration `yaml:"stats_log"`
	SessionRecap  time.Duration `yaml:"session_recap"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type JournalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DSN        string `yaml:"dsn"`
	BufferSize int    `yaml:"buffer_size"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := applyProfile(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TIMESCALE_DSN"); v != "" {
		cfg.Journal.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Exchange.Venue == "" {
		cfg.Exchange.Venue = "bybit"
	}
	if cfg.Exchange.Symbol == "" {
		cfg.Exchange.Symbol = "SOLUSDT"
	}
	if cfg.Exchange.Timeout == 0 {
		cfg.Exchange.Timeout = 10 * time.Second
	}
	if cfg.Exchange.PingInterval == 0 {
		cfg.Exchange.PingInterval = 30 * time.Second
	}
	if cfg.Exchange.ReconnectDelay == 0 {
		cfg.Exchange.ReconnectDelay = 3 * time.Second
	}
	if cfg.Exchange.RecvWindowMS == 0 {
		cfg.Exchange.RecvWindowMS = 5000
	}
	if cfg.Strategy.NumOrders == 0 {
		cfg.Strategy.NumOrders = 4
	}
	if cfg.Strategy.MinSpreadPct == 0 {
		cfg.Strategy.MinSpreadPct = 0.12
	}
	if cfg.Strategy.MaxSpreadPct == 0 {
		cfg.Strategy.MaxSpreadPct = 0.20
	}
	if cfg.Strategy.TargetSpreadMultiplier == 0 {
		cfg.Strategy.TargetSpreadMultiplier = 0.6
	}
	if cfg.Strategy.OrderRefreshInterval == 0 {
		cfg.Strategy.OrderRefreshInterval = 3 * time.Second
	}
	if cfg.Strategy.PriceTolerancePct == 0 {
		cfg.Strategy.PriceTolerancePct = 0.1
	}
	if cfg.Strategy.BatchSize == 0 {
		cfg.Strategy.BatchSize = 5
	}
	if cfg.Strategy.BatchPause == 0 {
		cfg.Strategy.BatchPause = 500 * time.Millisecond
	}
	if cfg.Strategy.BaseOrderUSD == 0 {
		cfg.Strategy.BaseOrderUSD = 120
	}
	if cfg.Strategy.MinOrderUSD == 0 {
		cfg.Strategy.MinOrderUSD = 100
	}
	if cfg.Strategy.MaxOrderUSD == 0 {
		cfg.Strategy.MaxOrderUSD = 150
	}
	if cfg.Strategy.SkewThresholdUSD == 0 {
		cfg.Strategy.SkewThresholdUSD = 50
	}
	if cfg.Strategy.PricePrecision == 0 {
		cfg.Strategy.PricePrecision = 3
	}
	if cfg.Strategy.AmountPrecision == 0 {
		cfg.Strategy.AmountPrecision = 1
	}
	if cfg.Strategy.MinAmount == 0 {
		cfg.Strategy.MinAmount = 0.1
	}
	if cfg.Strategy.MinNotionalUSD == 0 {
		cfg.Strategy.MinNotionalUSD = 5
	}
	if cfg.Risk.Leverage == 0 {
		cfg.Risk.Leverage = 10
	}
	if cfg.Risk.MaxLeverage == 0 {
		cfg.Risk.MaxLeverage = 10
	}
	if cfg.Risk.MaxPositionUSD == 0 {
		cfg.Risk.MaxPositionUSD = 200
	}
	if cfg.Risk.RebalanceThresholdUSD == 0 {
		cfg.Risk.RebalanceThresholdUSD = 100
	}
	if cfg.Risk.RebalanceFraction == 0 {
		cfg.Risk.RebalanceFraction = 0.9
	}
	if cfg.Risk.MaxDailyLossUSD == 0 {
		cfg.Risk.MaxDailyLossUSD = -10
	}
	if cfg.Risk.MaxTotalLossUSD == 0 {
		cfg.Risk.MaxTotalLossUSD = -20
	}
	if cfg.Risk.MaxOpenOrders == 0 {
		cfg.Risk.MaxOpenOrders = 2 * cfg.Strategy.NumOrders
	}
	if cfg.Risk.CrowdFactor == 0 {
		cfg.Risk.CrowdFactor = 2.0
	}
	if cfg.Risk.MakerFeePct == 0 {
		cfg.Risk.MakerFeePct = 0.02
	}
	if cfg.Risk.TakerFeePct == 0 {
		cfg.Risk.TakerFeePct = 0.05
	}
	if cfg.Risk.MaintenanceMarginPct == 0 {
		cfg.Risk.MaintenanceMarginPct = 0.5
	}
	if cfg.Model.Path == "" {
		cfg.Model.Path = "models/xgb_model.json"
	}
	if cfg.Model.ScalerPath == "" {
		cfg.Model.ScalerPath = "models/scaler.json"
	}
	if cfg.Model.ConfidenceThreshold == 0 {
		cfg.Model.ConfidenceThreshold = 0.60
	}
	if cfg.Model.ThresholdHigh == 0 {
		cfg.Model.ThresholdHigh = 0.65
	}
	if cfg.Model.ThresholdLow == 0 {
		cfg.Model.ThresholdLow = 0.35
	}
	if cfg.Model.UpdateInterval == 0 {
		cfg.Model.UpdateInterval = time.Minute
	}
	if cfg.Data.CandleInterval == "" {
		cfg.Data.CandleInterval = "1m"
	}
	if cfg.Data.Lookback == 0 {
		cfg.Data.Lookback = 500
	}
	if cfg.Data.Warmup == 0 {
		cfg.Data.Warmup = 200
	}
	if cfg.Data.UpdateInterval == 0 {
		cfg.Data.UpdateInterval = 2 * time.Minute
	}
	if cfg.Intervals.PositionCheck == 0 {
		cfg.Intervals.PositionCheck = 5 * time.Second
	}
	if cfg.Intervals.StatsLog == 0 {
		cfg.Intervals.StatsLog = 10 * time.Second
	}
	if cfg.Intervals.SessionRecap == 0 {
		cfg.Intervals.SessionRecap = time.Hour
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bot_state.db"
	}
	if cfg.Journal.BufferSize == 0 {
		cfg.Journal.BufferSize = 256
	}
	if cfg.Dashboard.Path == "" {
		cfg.Dashboard.Path = "dashboard.json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Exchange.Venue {
	case "bybit", "bitunix", "paper":
	default:
		return fmt.Errorf("exchange.venue %q is not supported", cfg.Exchange.Venue)
	}
	if cfg.Exchange.Symbol == "" {
		return errors.New("exchange.symbol is required")
	}
	if cfg.Strategy.NumOrders < 1 {
		return errors.New("strategy.num_orders must be >= 1")
	}
	if cfg.Strategy.MinSpreadPct <= 0 {
		return errors.New("strategy.min_spread_pct must be > 0")
	}
	if cfg.Strategy.MaxSpreadPct <= cfg.Strategy.MinSpreadPct {
		return errors.New("strategy.max_spread_pct must exceed min_spread_pct")
	}
	if cfg.Strategy.PriceTolerancePct < 0 {
		return errors.New("strategy.price_tolerance_pct must be >= 0")
	}
	if cfg.Strategy.MinOrderUSD > cfg.Strategy.MaxOrderUSD {
		return errors.New("strategy.min_order_usd exceeds max_order_usd")
	}
	if cfg.Strategy.BaseOrderUSD < cfg.Strategy.MinOrderUSD || cfg.Strategy.BaseOrderUSD > cfg.Strategy.MaxOrderUSD {
		return errors.New("strategy.base_order_usd outside [min_order_usd, max_order_usd]")
	}
	if cfg.Risk.Leverage < 1 || cfg.Risk.Leverage > cfg.Risk.MaxLeverage {
		return fmt.Errorf("risk.leverage must be in [1, %d]", cfg.Risk.MaxLeverage)
	}
	if cfg.Risk.RebalanceThresholdUSD >= cfg.Risk.MaxPositionUSD {
		return errors.New("risk.rebalance_threshold_usd must be below max_position_usd")
	}
	if cfg.Risk.RebalanceFraction <= 0 || cfg.Risk.RebalanceFraction > 1 {
		return errors.New("risk.rebalance_fraction must be in (0, 1]")
	}
	if cfg.Risk.MaxDailyLossUSD >= 0 {
		return errors.New("risk.max_daily_loss_usd must be negative")
	}
	if cfg.Risk.MaxTotalLossUSD >= 0 {
		return errors.New("risk.max_total_loss_usd must be negative")
	}
	if cfg.Risk.CrowdFactor < 1 {
		return errors.New("risk.crowd_factor must be >= 1")
	}
	if cfg.Model.ThresholdLow >= cfg.Model.ThresholdHigh {
		return errors.New("model.threshold_low must be below threshold_high")
	}
	if cfg.Data.Lookback < 50 {
		return errors.New("data.lookback must be >= 50")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.enabled requires token and chat_id")
	}
	if cfg.Journal.Enabled && cfg.Journal.DSN == "" {
		return errors.New("journal.enabled requires a dsn")
	}
	return nil
}

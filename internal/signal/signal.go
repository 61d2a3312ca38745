// Package signal turns candle history into a directional bias using a
// binary XGBoost classifier loaded from its JSON dump. Any failure in
// the feature pipeline or inference degrades to a neutral read: the
// strategy quotes symmetric spreads when the model has nothing to say.
package signal

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/features"
)

type Signal string

const (
	Bullish Signal = "BULLISH"
	Bearish Signal = "BEARISH"
	Neutral Signal = "NEUTRAL"
)

// Read is one model evaluation. Confidence is 0 for neutral reads and
// scales to 1 as the probability approaches either extreme.
type Read struct {
	Signal     Signal
	Confidence float64
	Prob       float64
	At         time.Time
}

var neutralRead = Read{Signal: Neutral}

// Evaluate maps a positive-class probability onto a directional signal
// using the high/low thresholds. Confidence is the distance past the
// threshold normalized by the remaining probability range.
func Evaluate(prob, high, low float64) (Signal, float64) {
	switch {
	case prob > high:
		return Bullish, (prob - high) / (1 - high)
	case prob < low:
		return Bearish, (low - prob) / low
	default:
		return Neutral, 0
	}
}

// Engine caches the latest read and re-evaluates at most once per
// update interval. Safe for concurrent use.
type Engine struct {
	cfg config.ModelConfig
	log *zap.Logger

	mu     sync.Mutex
	model  *Model
	scaler *Scaler
	last   Read
	now    func() time.Time
}

// NewEngine loads the model and scaler. When the model is disabled it
// returns an engine that always reports neutral; when loading fails
// the error is returned and the caller decides whether to run without
// a model.
func NewEngine(cfg config.ModelConfig, log *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:  cfg,
		log:  log,
		last: neutralRead,
		now:  time.Now,
	}
	if !cfg.Enabled {
		log.Info("model disabled, signal pinned neutral")
		return e, nil
	}
	model, err := LoadModel(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	scaler, err := LoadScaler(cfg.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if n := model.NumFeatures(); n > 0 && n != len(features.Columns) {
		return nil, fmt.Errorf("model trained on %d features, pipeline produces %d",
			n, len(features.Columns))
	}
	e.model = model
	e.scaler = scaler
	log.Info("model loaded",
		zap.String("path", cfg.Path),
		zap.Int("trees", len(model.trees)),
		zap.Float64("threshold_high", cfg.ThresholdHigh),
		zap.Float64("threshold_low", cfg.ThresholdLow))
	return e, nil
}

// Latest returns the cached read without triggering an evaluation.
func (e *Engine) Latest() Read {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Update re-evaluates the model on the given candle history. Calls
// inside the update interval return the cached read. Evaluation
// failures are logged and produce a neutral read rather than an error:
// a broken model must not stop the quoting loop.
func (e *Engine) Update(candles []exchange.Candle) Read {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !e.last.At.IsZero() && now.Sub(e.last.At) < e.cfg.UpdateInterval {
		return e.last
	}
	read := e.evaluate(candles, now)
	e.last = read
	return read
}

func (e *Engine) evaluate(candles []exchange.Candle, now time.Time) Read {
	if e.model == nil {
		return Read{Signal: Neutral, At: now}
	}
	row, err := features.Compute(candles)
	if err != nil {
		e.log.Warn("feature computation failed, signal neutral", zap.Error(err))
		return Read{Signal: Neutral, At: now}
	}
	scaled, err := e.scaler.Transform(row)
	if err != nil {
		e.log.Warn("scaler transform failed, signal neutral", zap.Error(err))
		return Read{Signal: Neutral, At: now}
	}
	prob, err := e.model.Predict(scaled)
	if err != nil {
		e.log.Warn("prediction failed, signal neutral", zap.Error(err))
		return Read{Signal: Neutral, At: now}
	}
	sig, conf := Evaluate(prob, e.cfg.ThresholdHigh, e.cfg.ThresholdLow)
	if sig != Neutral && conf < e.cfg.ConfidenceThreshold {
		e.log.Debug("signal below confidence threshold",
			zap.String("signal", string(sig)),
			zap.Float64("confidence", conf))
		sig, conf = Neutral, 0
	}
	return Read{Signal: sig, Confidence: conf, Prob: prob, At: now}
}

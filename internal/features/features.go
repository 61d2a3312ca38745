package features

import (
	"fmt"
	"math"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

// MinHistory is the shortest candle series that yields a fully
// defined feature row. The slowest inputs are the 100-bar volatility
// regime mean stacked on the 20-bar volatility window.
const MinHistory = 130

// Columns is the fixed feature order the model was trained on. The
// scaler file names its features and the loader checks them against
// this list, so order changes here are breaking.
var Columns = []string{
	"returns_1", "returns_5", "returns_15",
	"rsi_14", "stoch_rsi",
	"macd", "macd_signal", "macd_hist",
	"roc_10", "momentum_10",
	"atr_14",
	"bollinger_pct_b", "bollinger_width",
	"obv_slope", "vwap_dist",
	"adx_14", "ichimoku_dist",
	"volume_ratio",
	"volatility_20", "volatility_regime",
	"candle_body_pct", "upper_wick_pct", "lower_wick_pct",
	"hour_sin", "hour_cos",
	"session_asia", "session_eu", "session_us",
}

// Compute derives the latest feature row from an ascending candle
// series. It errors when the series is too short or the final row
// still contains undefined values, so callers can fall back to a
// neutral signal instead of feeding NaN into the model.
func Compute(candles []exchange.Candle) ([]float64, error) {
	n := len(candles)
	if n < MinHistory {
		return nil, fmt.Errorf("need %d candles for features, have %d", MinHistory, n)
	}

	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	returns1 := pctChange(closes, 1)
	returns5 := pctChange(closes, 5)
	returns15 := pctChange(closes, 15)

	rsi := wilderRSI(closes, 14)
	stoch := stochRSI(rsi, 14)

	ema12 := ema(closes, 12)
	ema26 := ema(closes, 26)
	macd := subtract(ema12, ema26)
	macdSignal := ema(dropNaN(macd), 9)
	macdSignal = realign(macdSignal, len(macd))
	macdHist := subtract(macd, macdSignal)

	roc10 := scale(pctChange(closes, 10), 100)
	momentum10 := diffN(closes, 10)

	atr := wilderATR(highs, lows, closes, 14)

	bbMid := sma(closes, 20)
	bbStd := rollingStd(closes, 20)
	pctB := nanSlice(n)
	bbWidth := nanSlice(n)
	for i := range closes {
		if math.IsNaN(bbMid[i]) || math.IsNaN(bbStd[i]) || bbMid[i] == 0 {
			continue
		}
		upper := bbMid[i] + 2*bbStd[i]
		lower := bbMid[i] - 2*bbStd[i]
		span := upper - lower
		if span == 0 {
			pctB[i] = 0.5
		} else {
			pctB[i] = (closes[i] - lower) / span
		}
		bbWidth[i] = span / bbMid[i]
	}

	obv := obvSeries(closes, volumes)
	volMA20 := sma(volumes, 20)
	obvSlope := nanSlice(n)
	for i := 10; i < n; i++ {
		if math.IsNaN(volMA20[i]) || volMA20[i] == 0 {
			continue
		}
		obvSlope[i] = (obv[i] - obv[i-10]) / 10 / volMA20[i]
	}

	vwap := vwapDistance(closes, volumes)
	adx := wilderADX(highs, lows, closes, 14)
	ichimoku := ichimokuDistance(highs, lows, closes)

	volumeRatio := nanSlice(n)
	for i := range volumes {
		if math.IsNaN(volMA20[i]) || volMA20[i] == 0 {
			continue
		}
		volumeRatio[i] = volumes[i] / volMA20[i]
	}

	vol20 := rollingStd(dropLeadingNaN(returns1), 20)
	vol20 = realign(vol20, n)
	vol20Mean := smaSkipNaN(vol20, 100)
	volRegime := nanSlice(n)
	for i := range vol20 {
		if math.IsNaN(vol20[i]) || math.IsNaN(vol20Mean[i]) || vol20Mean[i] == 0 {
			continue
		}
		volRegime[i] = vol20[i] / vol20Mean[i]
	}

	i := n - 1
	c := candles[i]
	body, upperWick, lowerWick := candleAnatomy(c)

	hour := float64(c.Time.UTC().Hour())
	hourSin := math.Sin(2 * math.Pi * hour / 24)
	hourCos := math.Cos(2 * math.Pi * hour / 24)
	sessionAsia, sessionEU, sessionUS := sessions(int(hour))

	row := []float64{
		returns1[i], returns5[i], returns15[i],
		rsi[i], stoch[i],
		macd[i], macdSignal[i], macdHist[i],
		roc10[i], momentum10[i],
		atr[i],
		pctB[i], bbWidth[i],
		obvSlope[i], vwap[i],
		adx[i], ichimoku[i],
		volumeRatio[i],
		vol20[i], volRegime[i],
		body, upperWick, lowerWick,
		hourSin, hourCos,
		sessionAsia, sessionEU, sessionUS,
	}
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature %s undefined at latest candle", Columns[j])
		}
	}
	return row, nil
}

// candleAnatomy measures body and wick sizes relative to the open.
func candleAnatomy(c exchange.Candle) (body, upperWick, lowerWick float64) {
	if c.Open == 0 {
		return 0, 0, 0
	}
	body = math.Abs(c.Close-c.Open) / c.Open
	upperWick = (c.High - math.Max(c.Open, c.Close)) / c.Open
	lowerWick = (math.Min(c.Open, c.Close) - c.Low) / c.Open
	return body, upperWick, lowerWick
}

// sessions marks the UTC trading session one-hots. The EU/US windows
// overlap 13:00-16:00, matching how the training data was labeled.
func sessions(hour int) (asia, eu, us float64) {
	if hour >= 0 && hour < 8 {
		asia = 1
	}
	if hour >= 8 && hour < 16 {
		eu = 1
	}
	if hour >= 13 && hour < 21 {
		us = 1
	}
	return asia, eu, us
}

func subtract(a, b []float64) []float64 {
	out := nanSlice(len(a))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		out[i] = a[i] - b[i]
	}
	return out
}

func scale(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func dropLeadingNaN(values []float64) []float64 {
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	return values[start:]
}

// realign right-pads a shortened series back to length n so indexes
// line up with the raw candle series again.
func realign(values []float64, n int) []float64 {
	if len(values) >= n {
		return values[len(values)-n:]
	}
	out := nanSlice(n)
	copy(out[n-len(values):], values)
	return out
}

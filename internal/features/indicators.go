package features

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func pctChange(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period; i < len(values); i++ {
		prev := values[i-period]
		if prev == 0 {
			continue
		}
		out[i] = (values[i] - prev) / prev
	}
	return out
}

func diffN(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period; i < len(values); i++ {
		out[i] = values[i] - values[i-period]
	}
	return out
}

func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	var sum float64
	for i, v := range values {
		if math.IsNaN(v) {
			return smaSkipNaN(values, period)
		}
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// smaSkipNaN handles inputs with a NaN warmup prefix, producing
// values only where the full window is defined.
func smaSkipNaN(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	var sum float64
	for i := start; i < len(values); i++ {
		sum += values[i]
		if i-start >= period {
			sum -= values[i-period]
		}
		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema is seeded with the simple average of the first period values.
func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	alpha := 2.0 / (float64(period) + 1)
	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// rollingStd is the sample standard deviation over the window.
func rollingStd(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		if hasNaN(window) {
			continue
		}
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)
		var sq float64
		for _, v := range window {
			d := v - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period-1))
	}
	return out
}

func rollingMax(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		if hasNaN(window) {
			continue
		}
		m := window[0]
		for _, v := range window[1:] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

func rollingMin(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		if hasNaN(window) {
			continue
		}
		m := window[0]
		for _, v := range window[1:] {
			if v < m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func wilderRSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var gain, loss float64
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// stochRSI rescales RSI into its rolling range. A flat window reads
// as the midpoint.
func stochRSI(rsi []float64, period int) []float64 {
	out := nanSlice(len(rsi))
	lows := rollingMin(rsi, period)
	highs := rollingMax(rsi, period)
	for i := range rsi {
		if math.IsNaN(rsi[i]) || math.IsNaN(lows[i]) || math.IsNaN(highs[i]) {
			continue
		}
		span := highs[i] - lows[i]
		if span == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (rsi[i] - lows[i]) / span
	}
	return out
}

func trueRanges(high, low, close []float64) []float64 {
	n := len(close)
	tr := make([]float64, n)
	if n == 0 {
		return tr
	}
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

func wilderATR(high, low, close []float64, period int) []float64 {
	out := nanSlice(len(close))
	if len(close) <= period {
		return out
	}
	tr := trueRanges(high, low, close)
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = atr
	for i := period + 1; i < len(close); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

func wilderADX(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if n < 2*period+1 {
		return out
	}
	tr := trueRanges(high, low, close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}
	dx := nanSlice(n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}
	var sumDX float64
	for i := period; i < 2*period; i++ {
		sumDX += dx[i]
	}
	adx := sumDX / float64(period)
	out[2*period-1] = adx
	for i := 2 * period; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out[i] = adx
	}
	return out
}

func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	plusDI := 100 * smPlus / smTR
	minusDI := 100 * smMinus / smTR
	total := plusDI + minusDI
	if total == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / total
}

func obvSeries(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = volumes[0]
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// vwapDistance measures how far close sits from the running
// volume-weighted average price.
func vwapDistance(closes, volumes []float64) []float64 {
	out := nanSlice(len(closes))
	var cumPV, cumVol float64
	for i := range closes {
		cumPV += closes[i] * volumes[i]
		cumVol += volumes[i]
		if cumVol == 0 {
			continue
		}
		vwap := cumPV / cumVol
		if vwap == 0 {
			continue
		}
		out[i] = (closes[i] - vwap) / vwap
	}
	return out
}

// ichimokuDistance is the tenkan/kijun gap relative to price.
func ichimokuDistance(high, low, close []float64) []float64 {
	out := nanSlice(len(close))
	tenkanHigh := rollingMax(high, 9)
	tenkanLow := rollingMin(low, 9)
	kijunHigh := rollingMax(high, 26)
	kijunLow := rollingMin(low, 26)
	for i := range close {
		if math.IsNaN(kijunHigh[i]) || math.IsNaN(tenkanHigh[i]) || close[i] == 0 {
			continue
		}
		tenkan := (tenkanHigh[i] + tenkanLow[i]) / 2
		kijun := (kijunHigh[i] + kijunLow[i]) / 2
		out[i] = (tenkan - kijun) / close[i]
	}
	return out
}

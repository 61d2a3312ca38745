package exchange

import (
	"math"
	"strconv"
	"strings"
)

// RoundTo rounds to the given number of decimal places.
func RoundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// RoundDown truncates toward zero at the given number of decimal
// places. Order quantities round down so a ladder never exceeds the
// sized notional.
func RoundDown(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	if value < 0 {
		return math.Ceil(value*factor) / factor
	}
	return math.Floor(value*factor) / factor
}

// FormatDecimal renders a qty or price as the trimmed decimal string
// both venues expect. The value must already be rounded to the venue's
// precision; decimals only bounds the rendered places.
func FormatDecimal(x float64, decimals int) string {
	if decimals < 0 {
		decimals = 8
	}
	s := strconv.FormatFloat(x, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

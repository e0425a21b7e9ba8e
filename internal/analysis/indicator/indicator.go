package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"levex/internal/market"
)

// Defaults follow the classic parameterizations used across the codebase.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
	RSIPeriod  = 14
)

// MACDHistogram returns the sanitized MACD(12,26,9) histogram series for the
// given candles, oldest first.
func MACDHistogram(candles []market.Candle) ([]float64, error) {
	closes := closeSeries(candles)
	if len(closes) < MACDSlow+MACDSignal {
		return nil, fmt.Errorf("macd requires at least %d closed candles, got %d", MACDSlow+MACDSignal, len(closes))
	}
	_, _, hist := talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
	series := sanitizeSeries(hist)
	if len(series) == 0 {
		return nil, fmt.Errorf("macd histogram empty")
	}
	return series, nil
}

// LatestRSI computes the newest RSI value over the given period (0 selects
// the default 14).
func LatestRSI(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = RSIPeriod
	}
	closes := closeSeries(candles)
	if len(closes) <= period {
		return 0, fmt.Errorf("rsi requires more than %d closed candles, got %d", period, len(closes))
	}
	series := sanitizeSeries(talib.Rsi(closes, period))
	if len(series) == 0 {
		return 0, fmt.Errorf("rsi series empty")
	}
	return series[len(series)-1], nil
}

// VolumeSpike reports the latest volume together with the trailing mean over
// window bars (the latest bar excluded).
func VolumeSpike(candles []market.Candle, window int) (latest, mean float64, err error) {
	if window <= 0 {
		window = 20
	}
	if len(candles) < window+1 {
		return 0, 0, fmt.Errorf("volume window %d requires %d candles, got %d", window, window+1, len(candles))
	}
	latest = candles[len(candles)-1].Volume
	start := len(candles) - 1 - window
	var sum float64
	for _, c := range candles[start : len(candles)-1] {
		sum += c.Volume
	}
	mean = sum / float64(window)
	return latest, mean, nil
}

// StrictlyDecreasing reports whether the last n values of series each sit
// strictly below their predecessor.
func StrictlyDecreasing(series []float64, n int) bool {
	if n < 2 || len(series) < n {
		return false
	}
	tail := series[len(series)-n:]
	for i := 1; i < len(tail); i++ {
		if tail[i] >= tail[i-1] {
			return false
		}
	}
	return true
}

func closeSeries(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

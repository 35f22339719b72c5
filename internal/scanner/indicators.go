package scanner

import (
	"math"

	"momentum-alerts/internal/marketdata"
)

// Indicator series are aligned index-for-index with their input; positions
// where the lookback window is not yet filled hold NaN.

// SMA computes a simple moving average over window.
func SMA(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// RSI computes the Relative Strength Index using rolling means of gains and
// losses over period. A window with zero average loss has infinite relative
// strength and maps to RSI 100; a flat window (no gains either) is NaN.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)
		switch {
		case avgLoss > 0:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		case avgGain > 0:
			out[i] = 100
		default:
			// Perfectly flat window: relative strength is 0/0.
			out[i] = math.NaN()
		}
	}
	return out
}

// ATR computes the Average True Range as a rolling mean of the true range.
// The first bar's true range degrades to high-low since there is no prior
// close.
func ATR(bars []marketdata.PriceBar, period int) []float64 {
	out := nanSlice(len(bars))
	if period <= 0 || len(bars) < period {
		return out
	}

	tr := make([]float64, len(bars))
	for i, bar := range bars {
		if i == 0 {
			tr[i] = bar.High - bar.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
	}

	var sum float64
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// rollingMeanLast returns the mean of the trailing window ending at the last
// element, or NaN when the series is too short.
func rollingMeanLast(values []float64, window int) float64 {
	if window <= 0 || len(values) < window {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

package scanner

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"momentum-alerts/internal/marketdata"
)

const (
	rsiPeriod    = 14
	atrPeriod    = 14
	smaPeriod    = 200
	volumePeriod = 20

	rsiTrigger     = 50.0
	volumeTrigger  = 2.0
	minPerShareRsk = "0.01"
)

// Signal is a qualifying momentum setup with risk-bounded sizing.
type Signal struct {
	Ticker       string
	Entry        decimal.Decimal
	Target       decimal.Decimal
	Stop         decimal.Decimal
	PositionSize decimal.Decimal
	RSI          float64
	ATR          float64
	VolumeRatio  float64
	News         []string
	EarningsDate *time.Time
}

// EngineOptions parameterise signal evaluation and sizing.
type EngineOptions struct {
	Capital            float64
	RiskFraction       float64
	TargetUpside       float64
	ATRStopMultiple    float64
	LiquidityThreshold float64
}

// Engine evaluates price histories against the momentum/liquidity gates.
type Engine struct {
	opts     EngineOptions
	capital  decimal.Decimal
	risk     decimal.Decimal
	target   decimal.Decimal
	stopMult decimal.Decimal
	riskFlr  decimal.Decimal
}

// NewEngine constructs a signal engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Capital <= 0 {
		opts.Capital = 1000
	}
	if opts.RiskFraction <= 0 {
		opts.RiskFraction = 0.05
	}
	if opts.TargetUpside <= 0 {
		opts.TargetUpside = 0.25
	}
	if opts.ATRStopMultiple <= 0 {
		opts.ATRStopMultiple = 2.0
	}
	if opts.LiquidityThreshold <= 0 {
		opts.LiquidityThreshold = 500_000
	}

	floor, _ := decimal.NewFromString(minPerShareRsk)
	return &Engine{
		opts:     opts,
		capital:  decimal.NewFromFloat(opts.Capital),
		risk:     decimal.NewFromFloat(opts.RiskFraction),
		target:   decimal.NewFromFloat(1 + opts.TargetUpside),
		stopMult: decimal.NewFromFloat(opts.ATRStopMultiple),
		riskFlr:  floor,
	}
}

// Evaluate runs the gate pipeline over an ascending daily series. It returns
// nil when any gate fails; news/earnings context is attached by the caller.
//
// Gates, in order: liquidity, trend (close above SMA-200), fresh RSI cross
// of 50, volume confirmation, defined ATR.
func (e *Engine) Evaluate(ticker string, bars []marketdata.PriceBar) *Signal {
	if len(bars) < smaPeriod {
		return nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	notionals := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
		notionals[i] = bar.Close * bar.Volume
	}

	// Liquidity: 20-bar trailing average traded value.
	avgNotional := rollingMeanLast(notionals, volumePeriod)
	if math.IsNaN(avgNotional) || avgNotional < e.opts.LiquidityThreshold {
		return nil
	}

	latest := bars[len(bars)-1]

	sma := SMA(closes, smaPeriod)
	smaLast := sma[len(sma)-1]
	if math.IsNaN(smaLast) || latest.Close <= smaLast {
		return nil
	}

	rsi := RSI(closes, rsiPeriod)
	rsiLast := rsi[len(rsi)-1]
	rsiPrev := rsi[len(rsi)-2]
	if math.IsNaN(rsiLast) || math.IsNaN(rsiPrev) {
		return nil
	}
	// Strict fresh cross: prior bar below 50, current at or above. Merely
	// sitting above 50 does not re-fire.
	if !(rsiPrev < rsiTrigger && rsiLast >= rsiTrigger) {
		return nil
	}

	avgVolume := rollingMeanLast(volumes, volumePeriod)
	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = latest.Volume / avgVolume
	}
	if volumeRatio <= volumeTrigger {
		return nil
	}

	atr := ATR(bars, atrPeriod)
	atrLast := atr[len(atr)-1]
	if math.IsNaN(atrLast) {
		return nil
	}

	entry := decimal.NewFromFloat(latest.Close)
	stop := entry.Sub(e.stopMult.Mul(decimal.NewFromFloat(atrLast)))
	target := entry.Mul(e.target)

	return &Signal{
		Ticker:       ticker,
		Entry:        entry,
		Target:       target,
		Stop:         stop,
		PositionSize: e.PositionSize(entry, stop),
		RSI:          rsiLast,
		ATR:          atrLast,
		VolumeRatio:  volumeRatio,
	}
}

// PositionSize returns the share count that risks at most
// capital*risk_fraction on a stop-out. Per-share risk is floored at 0.01 so
// a degenerate stop near (or above) entry cannot blow up the division.
func (e *Engine) PositionSize(entry, stop decimal.Decimal) decimal.Decimal {
	riskPerTrade := e.capital.Mul(e.risk)
	riskPerShare := entry.Sub(stop)
	if riskPerShare.LessThan(e.riskFlr) {
		riskPerShare = e.riskFlr
	}
	return riskPerTrade.Div(riskPerShare).Round(2)
}

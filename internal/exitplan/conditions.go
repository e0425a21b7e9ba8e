package exitplan

import (
	"context"
	"fmt"

	"levex/internal/analysis/indicator"
	"levex/internal/logger"
	"levex/internal/market"
	"levex/internal/pkg/jsonutil"
)

const (
	defaultTimeframe       = "4h"
	defaultMACDBars        = 3
	defaultSpikeMultiplier = 3.0
	defaultSpikeWindow     = 20
	candleFetchLimit       = 120
)

// evaluate runs one condition against live data. A lookup failure comes back
// as a StaleDataWarning; the caller treats it as not triggered.
func (e *Engine) evaluate(ctx context.Context, plan *Plan, cond Condition) (bool, string, error) {
	switch cond.Type {
	case CondPriceBelow, CondPriceAbove:
		return e.evalPrice(ctx, plan, cond)
	case CondMACDDecrease:
		return e.evalMACDDecrease(ctx, plan, cond)
	case CondRSIBelow, CondRSIAbove:
		return e.evalRSI(ctx, plan, cond)
	case CondVolumeSpike:
		return e.evalVolumeSpike(ctx, plan, cond)
	case CondCustom:
		// Custom conditions are advisory text for the caller; they never
		// auto-trigger.
		logger.Debugf("exit plan %s: custom condition noted, not evaluated: %s", plan.Symbol, cond.Description)
		return false, "", nil
	default:
		logger.Warnf("exit plan %s: unknown invalidation condition type %q, treated as not triggered", plan.Symbol, cond.Type)
		return false, "", nil
	}
}

func (e *Engine) evalPrice(ctx context.Context, plan *Plan, cond Condition) (bool, string, error) {
	threshold := jsonutil.Float(cond.Params, "price", 0)
	if threshold <= 0 {
		logger.Warnf("exit plan %s: %s condition missing price parameter", plan.Symbol, cond.Type)
		return false, "", nil
	}
	live, err := e.source.CurrentPrice(ctx, plan.Symbol)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	if cond.Type == CondPriceBelow && live < threshold {
		return true, fmt.Sprintf("price %.8g below %.8g", live, threshold), nil
	}
	if cond.Type == CondPriceAbove && live > threshold {
		return true, fmt.Sprintf("price %.8g above %.8g", live, threshold), nil
	}
	return false, "", nil
}

func (e *Engine) evalMACDDecrease(ctx context.Context, plan *Plan, cond Condition) (bool, string, error) {
	bars := jsonutil.Int(cond.Params, "bars", defaultMACDBars)
	if bars < 2 {
		bars = defaultMACDBars
	}
	candles, err := e.candles(ctx, plan.Symbol, cond)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	hist, err := indicator.MACDHistogram(candles)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	if indicator.StrictlyDecreasing(hist, bars) {
		return true, fmt.Sprintf("MACD histogram strictly decreasing over %d bars", bars), nil
	}
	return false, "", nil
}

func (e *Engine) evalRSI(ctx context.Context, plan *Plan, cond Condition) (bool, string, error) {
	threshold := jsonutil.Float(cond.Params, "value", 0)
	if threshold <= 0 {
		logger.Warnf("exit plan %s: %s condition missing value parameter", plan.Symbol, cond.Type)
		return false, "", nil
	}
	candles, err := e.candles(ctx, plan.Symbol, cond)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	rsi, err := indicator.LatestRSI(candles, indicator.RSIPeriod)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	if cond.Type == CondRSIBelow && rsi < threshold {
		return true, fmt.Sprintf("RSI %.2f below %.2f", rsi, threshold), nil
	}
	if cond.Type == CondRSIAbove && rsi > threshold {
		return true, fmt.Sprintf("RSI %.2f above %.2f", rsi, threshold), nil
	}
	return false, "", nil
}

func (e *Engine) evalVolumeSpike(ctx context.Context, plan *Plan, cond Condition) (bool, string, error) {
	multiplier := jsonutil.Float(cond.Params, "multiplier", defaultSpikeMultiplier)
	window := jsonutil.Int(cond.Params, "window", defaultSpikeWindow)
	candles, err := e.candles(ctx, plan.Symbol, cond)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	latest, mean, err := indicator.VolumeSpike(candles, window)
	if err != nil {
		return false, "", &StaleDataWarning{Symbol: plan.Symbol, Condition: cond.Type, Err: err}
	}
	if mean > 0 && latest >= multiplier*mean {
		return true, fmt.Sprintf("volume %.4g is %.1fx the %d-bar average", latest, latest/mean, window), nil
	}
	return false, "", nil
}

func (e *Engine) candles(ctx context.Context, symbol string, cond Condition) ([]market.Candle, error) {
	timeframe := jsonutil.String(cond.Params, "timeframe", e.timeframe)
	return e.source.Candles(ctx, symbol, timeframe, candleFetchLimit)
}

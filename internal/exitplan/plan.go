// Package exitplan keeps per-symbol exit intent: a target/stop pair plus
// invalidation conditions that are re-evaluated on demand. Plans carry no
// automatic transitions; the monitor polls them each cycle.
package exitplan

import (
	"errors"
	"fmt"
	"time"
)

// ConditionType names an invalidation predicate.
const (
	CondPriceBelow   = "price_below"
	CondPriceAbove   = "price_above"
	CondMACDDecrease = "macd_decrease"
	CondRSIBelow     = "rsi_below"
	CondRSIAbove     = "rsi_above"
	CondVolumeSpike  = "volume_spike"
	CondCustom       = "custom"
)

// Status values for a plan's evaluation state machine:
// created until first check, then valid or invalidated.
const (
	StatusCreated     = "created"
	StatusValid       = "valid"
	StatusInvalidated = "invalidated"
)

// ErrPlanNotFound marks a missing plan for the requested symbol.
var ErrPlanNotFound = errors.New("exit plan not found")

// Condition is one invalidation predicate. Any triggering condition
// invalidates the whole plan.
type Condition struct {
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Plan is the exit intent for one symbol. At most one plan exists per
// symbol; recreation overwrites.
type Plan struct {
	Symbol          string      `json:"symbol"`
	Side            string      `json:"side"`
	Size            float64     `json:"size"`
	EntryPrice      float64     `json:"entry_price"`
	TargetPrice     float64     `json:"target_price"`
	StopPrice       float64     `json:"stop_price"`
	PriceAtCreation float64     `json:"price_at_creation"`
	TargetPnl       float64     `json:"target_pnl"`
	StopPnl         float64     `json:"stop_pnl"`
	RiskRewardRatio float64     `json:"risk_reward_ratio"`
	Conditions      []Condition `json:"conditions,omitempty"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	CheckedAt       time.Time   `json:"checked_at,omitempty"`
}

// CheckResult reports one on-demand evaluation of a plan.
type CheckResult struct {
	Symbol    string     `json:"symbol"`
	Triggered bool       `json:"triggered"`
	Condition *Condition `json:"condition,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// StaleDataWarning wraps a price or indicator lookup failure during an
// invalidation check. It downgrades to "not triggered": an unchecked
// condition must never force a close, nor read as approval.
type StaleDataWarning struct {
	Symbol    string
	Condition string
	Err       error
}

func (w *StaleDataWarning) Error() string {
	return fmt.Sprintf("stale data for %s condition %s: %v", w.Symbol, w.Condition, w.Err)
}

func (w *StaleDataWarning) Unwrap() error { return w.Err }

func riskReward(entry, target, stop float64) float64 {
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := target - entry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// pnlAt is the signed quote-currency PnL of the tracked position if it were
// closed at price.
func pnlAt(side string, size, entry, price float64) float64 {
	if side == "short" {
		return (entry - price) * size
	}
	return (price - entry) * size
}

// Package monitor runs the periodic safety cycle: detect unprotected
// positions, re-evaluate exit plans, and score account risk. Every step is
// idempotent, so a crashed or skipped cycle is repaired by the next one.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"levex/internal/engine"
	"levex/internal/exitplan"
	"levex/internal/gateway/notifier"
	"levex/internal/logger"
)

const defaultInterval = 60 * time.Second

// Config tunes the cycle.
type Config struct {
	Interval time.Duration
	// AutoProtect attaches protection to bare positions from their exit
	// plan's target/stop when one exists; otherwise the cycle only alerts.
	AutoProtect bool
}

// Monitor owns the cycle loop.
type Monitor struct {
	eng      *engine.Engine
	plans    *exitplan.Engine
	notify   notifier.TextNotifier
	cfg      Config
	lastTier engine.RiskTier
}

func New(eng *engine.Engine, plans *exitplan.Engine, notify notifier.TextNotifier, cfg Config) (*Monitor, error) {
	if eng == nil {
		return nil, fmt.Errorf("monitor requires the trading engine")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Monitor{eng: eng, plans: plans, notify: notify, cfg: cfg}, nil
}

// Run executes cycles until ctx is cancelled. The first cycle runs
// immediately so a restart re-checks protection without waiting an interval.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Infof("monitor started, interval=%s auto_protect=%v", m.cfg.Interval, m.cfg.AutoProtect)
	m.cycle(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("monitor stopped")
			return nil
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) {
	m.checkProtection(ctx)
	m.checkExitPlans(ctx)
	m.checkRisk(ctx)
}

func (m *Monitor) checkProtection(ctx context.Context) {
	bare, err := m.eng.UnprotectedPositions(ctx)
	if err != nil {
		logger.Warnf("monitor: protection audit failed: %v", err)
		return
	}
	for _, item := range bare {
		pos := item.Position
		logger.Warnf("monitor: %s %s position (notional %.2f) has no stop-loss", pos.Symbol, pos.Side, pos.Notional)
		if m.cfg.AutoProtect && m.plans != nil {
			if plan, err := m.plans.Plan(pos.Symbol); err == nil {
				outcome, perr := m.eng.AddProtectionToPosition(ctx, pos.Symbol, plan.TargetPrice, plan.StopPrice)
				if perr != nil {
					logger.Errorf("monitor: auto-protect %s failed: %v", pos.Symbol, perr)
				} else {
					logger.Infof("monitor: auto-protected %s (%s)", pos.Symbol, outcome.Kind)
					continue
				}
			}
		}
		m.send(fmt.Sprintf("⚠️ %s %s position is unprotected (notional %.2f)", pos.Symbol, pos.Side, pos.Notional))
	}
}

func (m *Monitor) checkExitPlans(ctx context.Context) {
	if m.plans == nil {
		return
	}
	results, err := m.plans.CheckAllExitPlans(ctx)
	if err != nil {
		logger.Warnf("monitor: exit plan check failed: %v", err)
		return
	}
	for _, res := range results {
		if !res.Triggered {
			continue
		}
		m.send(fmt.Sprintf("Exit plan for %s invalidated: %s. Consider closing.", res.Symbol, res.Reason))
	}
}

func (m *Monitor) checkRisk(ctx context.Context) {
	risk, err := m.eng.LiquidationRisk(ctx)
	if err != nil {
		logger.Warnf("monitor: risk check failed: %v", err)
		return
	}
	prev := m.lastTier
	m.lastTier = risk.Tier
	if risk.Tier == prev {
		return
	}
	logger.Infof("monitor: risk tier changed %s -> %s (margin level %.3f)", prev, risk.Tier, risk.MarginLevel)
	if risk.Tier.WorseOrEqual(engine.TierCritical) {
		m.send(fmt.Sprintf("🚨 Risk tier %s (margin level %.3f): %s",
			risk.Tier, risk.MarginLevel, risk.Recommendation))
	} else if prev != "" && prev.WorseOrEqual(engine.TierCritical) {
		m.send(fmt.Sprintf("Risk recovered to %s (margin level %.3f)", risk.Tier, risk.MarginLevel))
	}
}

func (m *Monitor) send(text string) {
	if err := m.notify.SendText(strings.TrimSpace(text)); err != nil {
		logger.Warnf("monitor: notify failed: %v", err)
	}
}

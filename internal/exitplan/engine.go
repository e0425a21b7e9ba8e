package exitplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"levex/internal/logger"
	"levex/internal/market"
	"levex/internal/metrics"
	symbolpkg "levex/internal/pkg/symbol"
	"levex/internal/store/journal"
)

// PositionInfo is the slice of position state the plan engine needs to size
// its PnL figures. The app wires it from the trading side; this package has
// no dependency on it.
type PositionInfo struct {
	Symbol     string
	Side       string // long | short
	Size       float64
	EntryPrice float64
}

// PositionFn resolves the live position for symbol, or an error when none
// exists.
type PositionFn func(ctx context.Context, symbol string) (*PositionInfo, error)

// CloseFn flattens the position for symbol, repaying outstanding debt.
type CloseFn func(ctx context.Context, symbol string) error

// ConvertFn translates a quote-currency PnL amount into the settlement
// currency. Identity when nil.
type ConvertFn func(ctx context.Context, amountQuote float64) (float64, error)

// Engine holds the per-symbol plan table: concurrent reads, single-writer
// updates, write-through persistence.
type Engine struct {
	source    market.Source
	store     *Store
	registry  *Registry
	position  PositionFn
	closePos  CloseFn
	convert   ConvertFn
	journal   *journal.Store
	timeframe string

	mu    sync.RWMutex
	plans map[string]*Plan
}

// Params wires an Engine. Source and Position are required; Store, Registry,
// ClosePosition, Convert and Journal are optional.
type Params struct {
	Source        market.Source
	Store         *Store
	Registry      *Registry
	Position      PositionFn
	ClosePosition CloseFn
	Convert       ConvertFn
	Journal       *journal.Store
	Timeframe     string
}

// New builds the engine and hydrates the table from the store, so plans
// survive a restart.
func New(p Params) (*Engine, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("exit plan engine requires a market source")
	}
	if p.Position == nil {
		return nil, fmt.Errorf("exit plan engine requires a position resolver")
	}
	if p.Timeframe == "" {
		p.Timeframe = defaultTimeframe
	}
	e := &Engine{
		source:    p.Source,
		store:     p.Store,
		registry:  p.Registry,
		position:  p.Position,
		closePos:  p.ClosePosition,
		convert:   p.Convert,
		journal:   p.Journal,
		timeframe: p.Timeframe,
		plans:     make(map[string]*Plan),
	}
	persisted, err := p.Store.All(context.Background())
	if err != nil {
		return nil, err
	}
	for _, plan := range persisted {
		e.plans[plan.Symbol] = plan
	}
	if len(persisted) > 0 {
		logger.Infof("exit plan engine restored %d plans", len(persisted))
	}
	return e, nil
}

// CreateExitPlan registers (or overwrites) the exit plan for symbol. A live
// position is required: exit intent without exposure is a caller bug.
func (e *Engine) CreateExitPlan(ctx context.Context, symbol string, targetPrice, stopPrice float64, conditions []Condition) (*Plan, error) {
	norm := symbolpkg.Normalize(symbol)
	if norm == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	if targetPrice <= 0 || stopPrice <= 0 {
		return nil, fmt.Errorf("targetPrice and stopPrice must be positive")
	}
	pos, err := e.position(ctx, norm)
	if err != nil {
		return nil, err
	}
	if err := e.validateConditions(norm, conditions); err != nil {
		return nil, err
	}
	live, err := e.source.CurrentPrice(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("price at creation for %s: %w", norm, err)
	}

	targetPnl, err := e.settlementPnl(ctx, pnlAt(pos.Side, pos.Size, pos.EntryPrice, targetPrice))
	if err != nil {
		return nil, err
	}
	stopPnl, err := e.settlementPnl(ctx, pnlAt(pos.Side, pos.Size, pos.EntryPrice, stopPrice))
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Symbol:          norm,
		Side:            pos.Side,
		Size:            pos.Size,
		EntryPrice:      pos.EntryPrice,
		TargetPrice:     targetPrice,
		StopPrice:       stopPrice,
		PriceAtCreation: live,
		TargetPnl:       targetPnl,
		StopPnl:         stopPnl,
		RiskRewardRatio: riskReward(pos.EntryPrice, targetPrice, stopPrice),
		Conditions:      append([]Condition(nil), conditions...),
		Status:          StatusCreated,
		CreatedAt:       time.Now(),
	}

	e.mu.Lock()
	e.plans[norm] = plan
	e.mu.Unlock()

	if err := e.store.Save(ctx, plan); err != nil {
		logger.Warnf("exit plan %s: persist failed: %v", norm, err)
	}
	logger.Infof("exit plan %s: target=%v stop=%v rr=%.2f conditions=%d",
		norm, targetPrice, stopPrice, plan.RiskRewardRatio, len(plan.Conditions))
	return clonePlan(plan), nil
}

// Plan returns the stored plan for symbol.
func (e *Engine) Plan(symbol string) (*Plan, error) {
	norm := symbolpkg.Normalize(symbol)
	e.mu.RLock()
	plan, ok := e.plans[norm]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exit plan %s: %w", norm, ErrPlanNotFound)
	}
	return clonePlan(plan), nil
}

// Plans lists all stored plans.
func (e *Engine) Plans() []*Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Plan, 0, len(e.plans))
	for _, plan := range e.plans {
		out = append(out, clonePlan(plan))
	}
	return out
}

// CheckInvalidation evaluates every condition on the symbol's plan.
// Conditions OR together: the first trigger invalidates the plan. Evaluator
// failures degrade to "not triggered" with a warning, never to a forced
// close.
func (e *Engine) CheckInvalidation(ctx context.Context, symbol string) (*CheckResult, error) {
	norm := symbolpkg.Normalize(symbol)
	e.mu.RLock()
	plan, ok := e.plans[norm]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exit plan %s: %w", norm, ErrPlanNotFound)
	}
	return e.checkPlan(ctx, plan)
}

func (e *Engine) checkPlan(ctx context.Context, plan *Plan) (*CheckResult, error) {
	result := &CheckResult{Symbol: plan.Symbol, CheckedAt: time.Now()}
	for i := range plan.Conditions {
		cond := plan.Conditions[i]
		triggered, reason, err := e.evaluate(ctx, plan, cond)
		if err != nil {
			var stale *StaleDataWarning
			if errors.As(err, &stale) {
				logger.Warnf("exit plan %s: %v, condition treated as not triggered", plan.Symbol, stale)
				continue
			}
			return nil, err
		}
		if triggered {
			result.Triggered = true
			result.Condition = &cond
			result.Reason = reason
			break
		}
	}

	status := StatusValid
	if result.Triggered {
		status = StatusInvalidated
		metrics.InvalidationsTriggered.WithLabelValues(result.Condition.Type).Inc()
		logger.Warnf("exit plan %s invalidated: %s", plan.Symbol, result.Reason)
		e.journalTrigger(ctx, plan, result)
	}
	e.mu.Lock()
	plan.Status = status
	plan.CheckedAt = result.CheckedAt
	e.mu.Unlock()
	if err := e.store.Save(ctx, plan); err != nil {
		logger.Warnf("exit plan %s: persist status failed: %v", plan.Symbol, err)
	}
	return result, nil
}

// CheckAllExitPlans evaluates every stored plan, fanning the per-symbol
// checks out concurrently. It returns one result per plan; a failing check
// fails the batch.
func (e *Engine) CheckAllExitPlans(ctx context.Context) ([]*CheckResult, error) {
	e.mu.RLock()
	plans := make([]*Plan, 0, len(e.plans))
	for _, plan := range e.plans {
		plans = append(plans, plan)
	}
	e.mu.RUnlock()
	if len(plans) == 0 {
		return []*CheckResult{}, nil
	}

	results := make([]*CheckResult, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			res, err := e.checkPlan(gctx, plan)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExecuteExitPlan closes the position behind the plan and removes the plan.
func (e *Engine) ExecuteExitPlan(ctx context.Context, symbol string) error {
	norm := symbolpkg.Normalize(symbol)
	e.mu.RLock()
	_, ok := e.plans[norm]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("exit plan %s: %w", norm, ErrPlanNotFound)
	}
	if e.closePos == nil {
		return fmt.Errorf("exit plan %s: no close handler wired", norm)
	}
	if err := e.closePos(ctx, norm); err != nil {
		return fmt.Errorf("execute exit plan %s: %w", norm, err)
	}
	return e.RemoveExitPlan(ctx, norm)
}

// RemoveExitPlan drops the plan for symbol from the table and the store.
func (e *Engine) RemoveExitPlan(ctx context.Context, symbol string) error {
	norm := symbolpkg.Normalize(symbol)
	e.mu.Lock()
	_, ok := e.plans[norm]
	delete(e.plans, norm)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("exit plan %s: %w", norm, ErrPlanNotFound)
	}
	if err := e.store.Delete(ctx, norm); err != nil {
		logger.Warnf("exit plan %s: delete from store failed: %v", norm, err)
	}
	return nil
}

func (e *Engine) validateConditions(symbol string, conditions []Condition) error {
	for _, cond := range conditions {
		if cond.Type == "" {
			return fmt.Errorf("exit plan %s: condition missing type", symbol)
		}
		if e.registry == nil {
			continue
		}
		if tpl, ok := e.registry.Template(cond.Type); ok {
			if err := tpl.Validate(cond.Params); err != nil {
				return fmt.Errorf("exit plan %s: condition %s: %w", symbol, cond.Type, err)
			}
		}
	}
	return nil
}

func (e *Engine) settlementPnl(ctx context.Context, quoteAmount float64) (float64, error) {
	if e.convert == nil {
		return quoteAmount, nil
	}
	return e.convert(ctx, quoteAmount)
}

func (e *Engine) journalTrigger(ctx context.Context, plan *Plan, result *CheckResult) {
	if e.journal == nil {
		return
	}
	detail, _ := json.Marshal(map[string]any{
		"condition": result.Condition.Type,
		"reason":    result.Reason,
	})
	rec := journal.Record{
		Symbol: plan.Symbol, Kind: journal.KindInvalidation,
		Status: journal.StatusOK, Detail: string(detail),
	}
	if err := e.journal.Append(ctx, rec); err != nil {
		logger.Warnf("exit plan %s: journal invalidation failed: %v", plan.Symbol, err)
	}
}

func clonePlan(src *Plan) *Plan {
	dst := *src
	dst.Conditions = append([]Condition(nil), src.Conditions...)
	return &dst
}

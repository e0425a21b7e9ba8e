package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
	"levex/internal/metrics"
	"levex/internal/store/journal"
)

// EntryPlan is the reconciled outcome of a leveraged sizing request. When
// Adjusted is set the order was shrunk so usable funds plus the capped
// borrow exactly cover it.
type EntryPlan struct {
	TraceID           string     `json:"trace_id"`
	Symbol            string     `json:"symbol"`
	Side              venue.Side `json:"side"`
	Price             float64    `json:"price"`
	RequestedQuantity float64    `json:"requested_quantity"`
	FinalQuantity     float64    `json:"final_quantity"`
	BorrowAsset       string     `json:"borrowed_asset"`
	BorrowedAmount    float64    `json:"borrowed_amount"`
	BorrowCap         float64    `json:"borrow_cap"`
	Buffer            float64    `json:"buffer"`
	Adjusted          bool       `json:"adjusted"`
}

// RequestLeveragedEntry sizes a leveraged entry and, when funds are missing,
// opens the margin loan. The borrow settles before the method returns so the
// follow-up entry order can count it as available margin.
//
// safetyLevel <= 0 selects the configured default (1.5).
func (e *Engine) RequestLeveragedEntry(ctx context.Context, symbol string, side venue.Side, desiredExposure float64, leverage int, safetyLevel float64) (*EntryPlan, error) {
	if desiredExposure <= 0 {
		return nil, validationErr("desiredExposure", "must be positive")
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if leverage <= 0 {
		leverage = e.set.DefaultLeverage
	}
	if safetyLevel <= 0 {
		safetyLevel = e.set.MarginSafetyLevel
	}

	price, err := e.source.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, &PricingUnavailableError{Symbol: symbol, Err: err}
	}
	meta, err := e.venue.Instrument(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", symbol, err)
	}
	snap, err := e.snapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	borrowAsset := meta.QuoteAsset
	if side == venue.SideSell {
		borrowAsset = meta.BaseAsset
	}
	free := snap.Asset(borrowAsset).Free

	// Reserve the protective-order buffer up front; sizing must never eat
	// the funds a follow-up stop/take-profit pair will need.
	buffer := e.set.BufferPct * free
	if e.set.BufferQuote < buffer {
		buffer = e.set.BufferQuote
	}
	usable := free - buffer
	if usable < 0 {
		usable = 0
	}

	exposure := decFromFloat(desiredExposure)
	lev := decFromFloat(float64(leverage))
	var totalRequired float64
	if side == venue.SideBuy {
		totalRequired = decToFloat(exposure.Mul(decFromFloat(price)).Mul(lev))
	} else {
		totalRequired = decToFloat(exposure.Mul(lev))
	}
	needed := totalRequired - usable
	if needed < 0 {
		needed = 0
	}

	plan := &EntryPlan{
		TraceID:           uuid.NewString(),
		Symbol:            symbol,
		Side:              side,
		Price:             price,
		RequestedQuantity: desiredExposure,
		FinalQuantity:     desiredExposure,
		BorrowAsset:       borrowAsset,
		Buffer:            buffer,
	}

	if needed > 0 {
		borrowCap, err := e.BorrowCapacity(ctx, snap, borrowAsset, symbol, safetyLevel)
		if err != nil {
			return nil, err
		}
		plan.BorrowCap = borrowCap
		if needed > borrowCap {
			// Shrink proportionally so usable + cap exactly funds the order.
			fundable := usable + borrowCap
			if fundable <= 0 {
				return nil, validationErr("desiredExposure", "no usable funds or borrow capacity")
			}
			factor := decFromFloat(fundable).Div(decFromFloat(totalRequired))
			plan.FinalQuantity = decToFloat(exposure.Mul(factor))
			plan.Adjusted = true
			needed = borrowCap
			metrics.SizingAdjustments.Inc()
			logger.Warnf("leveraged entry %s %s adjusted: requested=%v final=%v cap=%v",
				symbol, side, plan.RequestedQuantity, plan.FinalQuantity, borrowCap)
		}
		plan.BorrowedAmount = needed
	}

	plan.FinalQuantity = FormatQuantity(plan.FinalQuantity, meta)
	if plan.FinalQuantity <= 0 {
		return nil, validationErr("quantity", "below instrument minimum after adjustment")
	}
	if !MeetsMinNotional(plan.FinalQuantity, price, meta) {
		return nil, validationErr("quantity", fmt.Sprintf("notional below instrument minimum %v", meta.MinNotional))
	}

	if plan.BorrowedAmount > 0 {
		if err := e.borrowAndSettle(ctx, plan, free); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// borrowAndSettle submits the loan and waits until the venue reflects it in
// free balance. Borrow-then-order ordering is load-bearing: the entry order
// references the settled loan as available margin.
func (e *Engine) borrowAndSettle(ctx context.Context, plan *EntryPlan, freeBefore float64) error {
	tranID, err := e.venue.Borrow(ctx, plan.BorrowAsset, plan.BorrowedAmount, e.borrowScope(plan.Symbol))
	detail, _ := json.Marshal(map[string]any{"asset": plan.BorrowAsset, "amount": plan.BorrowedAmount, "tran_id": tranID})
	if err != nil {
		e.journalAppend(ctx, journal.Record{
			TraceID: plan.TraceID, Symbol: plan.Symbol, Kind: journal.KindBorrow,
			Status: journal.StatusFailed, Detail: string(detail), Error: err.Error(),
		})
		return &VenueRejection{Leg: LegBorrow, Err: err}
	}
	e.journalAppend(ctx, journal.Record{
		TraceID: plan.TraceID, Symbol: plan.Symbol, Kind: journal.KindBorrow,
		Status: journal.StatusOK, Detail: string(detail),
	})

	want := freeBefore + plan.BorrowedAmount*0.99
	for attempt := 0; attempt < e.set.BorrowSettleAttempts; attempt++ {
		snap, err := e.snapshot(ctx, plan.Symbol)
		if err == nil && snap.Asset(plan.BorrowAsset).Free >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.set.BorrowSettleDelay):
		}
	}
	// The loan was accepted; a slow balance mirror should not abort the
	// entry, only be visible in the log.
	logger.Warnf("borrow %s %v on %s not yet visible in balance after %d checks",
		plan.BorrowAsset, plan.BorrowedAmount, plan.Symbol, e.set.BorrowSettleAttempts)
	return nil
}

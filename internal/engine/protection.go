package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
	"levex/internal/metrics"
	"levex/internal/store/journal"
)

// OutcomeKind tags how a protection attempt ended. Callers branch on the
// kind, never on booleans.
type OutcomeKind string

const (
	OutcomeNativeOCO        OutcomeKind = "native_oco"
	OutcomeSeparateOrders   OutcomeKind = "separate_orders"
	OutcomeAlreadyProtected OutcomeKind = "already_protected"
	OutcomeFailed           OutcomeKind = "failed"
)

// Outcome is the tagged result of AttachProtection. For native_oco only
// OrderListID is set; for separate_orders the two leg ids (LimitOrderID may
// be zero with LimitErr set when only the stop leg went through).
type Outcome struct {
	Kind            OutcomeKind `json:"kind"`
	Symbol          string      `json:"symbol"`
	OrderListID     int64       `json:"order_list_id,omitempty"`
	StopOrderID     int64       `json:"stop_order_id,omitempty"`
	LimitOrderID    int64       `json:"limit_order_id,omitempty"`
	Quantity        float64     `json:"quantity"`
	TakeProfitPrice float64     `json:"take_profit_price"`
	StopLossPrice   float64     `json:"stop_loss_price"`
	StopLimitPrice  float64     `json:"stop_limit_price"`
	StopErr         error       `json:"-"`
	LimitErr        error       `json:"-"`
}

// AttachProtection places a take-profit/stop-loss pair for an open position,
// preferring the venue's atomic OCO and falling back to two independent
// reduce-only orders. The stop leg goes first in the fallback: loss
// protection outranks profit taking.
//
// The call is idempotent: an already-protected position yields
// already_protected instead of a second OCO. A stop-leg failure returns both
// a failed Outcome and a non-nil error naming the leg; a leveraged position
// left bare must never look like success.
func (e *Engine) AttachProtection(ctx context.Context, symbol string, exitSide venue.Side, quantity, takeProfit, stopLoss, stopLimit float64) (*Outcome, error) {
	if quantity <= 0 {
		return nil, validationErr("quantity", "must be positive")
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if takeProfit <= 0 || stopLoss <= 0 {
		return nil, validationErr("prices", "takeProfit and stopLoss are required")
	}
	// The pair must bracket the market in the right order for the exit side.
	if exitSide == venue.SideSell && takeProfit <= stopLoss {
		return nil, validationErr("prices", "sell-side protection requires takeProfit > stopLoss")
	}
	if exitSide == venue.SideBuy && takeProfit >= stopLoss {
		return nil, validationErr("prices", "buy-side protection requires takeProfit < stopLoss")
	}

	status, err := e.protectionStatus(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if status.HasProtection {
		logger.Infof("attach protection %s: already protected (stop=%v tp=%v)",
			symbol, status.HasStopLoss, status.HasTakeProfit)
		metrics.ProtectionOutcomes.WithLabelValues(string(OutcomeAlreadyProtected)).Inc()
		return &Outcome{Kind: OutcomeAlreadyProtected, Symbol: symbol}, nil
	}

	meta, err := e.venue.Instrument(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", symbol, err)
	}
	out := &Outcome{
		Symbol:          symbol,
		Quantity:        FormatQuantity(quantity, meta),
		TakeProfitPrice: RoundToTick(takeProfit, meta.TickSize),
		StopLossPrice:   RoundToTick(stopLoss, meta.TickSize),
	}
	if out.Quantity <= 0 {
		return nil, validationErr("quantity", "below instrument minimum")
	}
	// The venue's OCO primitive wants a stop-limit price even for a
	// conceptually stop-market exit; derive one 1% through the stop in the
	// direction that guarantees execution.
	if stopLimit <= 0 {
		if exitSide == venue.SideSell {
			stopLimit = stopLoss * 0.99
		} else {
			stopLimit = stopLoss * 1.01
		}
	}
	out.StopLimitPrice = RoundToTick(stopLimit, meta.TickSize)

	traceID := uuid.NewString()
	ocoRes, err := e.venue.CreateOCO(ctx, venue.OCORequest{
		Symbol:         symbol,
		Side:           exitSide,
		Quantity:       out.Quantity,
		Price:          out.TakeProfitPrice,
		StopPrice:      out.StopLossPrice,
		StopLimitPrice: out.StopLimitPrice,
		ReduceOnly:     true,
		IsIsolated:     e.set.MarginMode.Isolated(),
	})
	if err == nil {
		out.Kind = OutcomeNativeOCO
		out.OrderListID = ocoRes.OrderListID
		e.journalProtection(ctx, traceID, symbol, LegProtectionOCO, journal.StatusOK, out, nil)
		metrics.ProtectionOutcomes.WithLabelValues(string(OutcomeNativeOCO)).Inc()
		return out, nil
	}
	logger.Warnf("attach protection %s: native OCO rejected, falling back to separate orders: %v", symbol, err)
	e.journalProtection(ctx, traceID, symbol, LegProtectionOCO, journal.StatusFailed, out, err)

	return e.attachSeparateOrders(ctx, traceID, exitSide, out)
}

// attachSeparateOrders is the compensating path: stop-loss first, then the
// take-profit limit, both reduce-only.
func (e *Engine) attachSeparateOrders(ctx context.Context, traceID string, exitSide venue.Side, out *Outcome) (*Outcome, error) {
	stopOrder, stopErr := e.venue.CreateOrder(ctx, venue.OrderRequest{
		Symbol:     out.Symbol,
		Side:       exitSide,
		Type:       venue.OrderTypeStopLossLimit,
		Quantity:   out.Quantity,
		Price:      out.StopLimitPrice,
		StopPrice:  out.StopLossPrice,
		ReduceOnly: true,
		IsIsolated: e.set.MarginMode.Isolated(),
	})
	if stopErr != nil {
		out.Kind = OutcomeFailed
		out.StopErr = stopErr
		e.journalProtection(ctx, traceID, out.Symbol, LegProtectionStop, journal.StatusFailed, out, stopErr)
		metrics.ProtectionOutcomes.WithLabelValues(string(OutcomeFailed)).Inc()
		e.alert(fmt.Sprintf("⚠️ %s is UNPROTECTED: stop-loss leg rejected: %v", out.Symbol, stopErr))
		return out, &VenueRejection{Leg: LegProtectionStop, Err: stopErr}
	}
	out.StopOrderID = stopOrder.OrderID
	e.journalProtection(ctx, traceID, out.Symbol, LegProtectionStop, journal.StatusOK, out, nil)

	limitOrder, limitErr := e.venue.CreateOrder(ctx, venue.OrderRequest{
		Symbol:     out.Symbol,
		Side:       exitSide,
		Type:       venue.OrderTypeLimit,
		Quantity:   out.Quantity,
		Price:      out.TakeProfitPrice,
		ReduceOnly: true,
		IsIsolated: e.set.MarginMode.Isolated(),
	})
	out.Kind = OutcomeSeparateOrders
	if limitErr != nil {
		// Downside is covered; the missing take-profit is reported, not
		// escalated to a hard failure.
		out.LimitErr = limitErr
		e.journalProtection(ctx, traceID, out.Symbol, LegProtectionTP, journal.StatusFailed, out, limitErr)
		logger.Errorf("attach protection %s: take-profit leg rejected (stop %d live): %v",
			out.Symbol, out.StopOrderID, limitErr)
		e.alert(fmt.Sprintf("%s: stop-loss placed (order %d) but take-profit leg failed: %v",
			out.Symbol, out.StopOrderID, limitErr))
	} else {
		out.LimitOrderID = limitOrder.OrderID
		e.journalProtection(ctx, traceID, out.Symbol, LegProtectionTP, journal.StatusOK, out, nil)
	}
	metrics.ProtectionOutcomes.WithLabelValues(string(OutcomeSeparateOrders)).Inc()
	return out, nil
}

func (e *Engine) journalProtection(ctx context.Context, traceID, symbol, leg, status string, out *Outcome, cause error) {
	detail, _ := json.Marshal(out)
	rec := journal.Record{
		TraceID: traceID, Symbol: symbol, Kind: journal.KindProtection,
		Leg: leg, Status: status, Detail: string(detail),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	e.journalAppend(ctx, rec)
}

func (e *Engine) alert(text string) {
	if err := e.notify.SendText(text); err != nil {
		logger.Warnf("notifier: %v", err)
	}
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
	"levex/internal/metrics"
	"levex/internal/store/journal"
)

// OrderOptions carries the optional knobs shared by the order entry points.
// Leverage > 1 routes the call through borrow-aware sizing before the order
// is placed; TakeProfit/StopLoss attach protection right after the fill.
type OrderOptions struct {
	Leverage    int     `json:"leverage"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`
	TimeInForce string  `json:"time_in_force"`
	PostOnly    bool    `json:"post_only"`
	ReduceOnly  bool    `json:"reduce_only"`
}

// OrderResult is the engine-level acknowledgement: the venue order plus the
// sizing plan that produced it and the protection outcome, when any.
type OrderResult struct {
	Order      *venue.Order `json:"order"`
	Plan       *EntryPlan   `json:"plan,omitempty"`
	Protection *Outcome     `json:"protection,omitempty"`
}

// CreateMarketOrder sizes and submits a market order. With leverage the
// loan is opened and settled first; the order itself never auto-borrows.
func (e *Engine) CreateMarketOrder(ctx context.Context, symbol string, side venue.Side, quantity float64, opts OrderOptions) (*OrderResult, error) {
	return e.submitEntry(ctx, symbol, side, quantity, 0, 0, venue.OrderTypeMarket, opts)
}

// CreateLimitOrder sizes and submits a limit order at price.
func (e *Engine) CreateLimitOrder(ctx context.Context, symbol string, side venue.Side, quantity, price float64, opts OrderOptions) (*OrderResult, error) {
	if price <= 0 {
		return nil, validationErr("price", "must be positive")
	}
	return e.submitEntry(ctx, symbol, side, quantity, price, 0, venue.OrderTypeLimit, opts)
}

// CreateStopLimitOrder submits a stop-limit order that rests until stopPrice
// trades, then works as a limit at price.
func (e *Engine) CreateStopLimitOrder(ctx context.Context, symbol string, side venue.Side, quantity, price, stopPrice float64, opts OrderOptions) (*OrderResult, error) {
	if price <= 0 || stopPrice <= 0 {
		return nil, validationErr("price", "price and stopPrice must be positive")
	}
	return e.submitEntry(ctx, symbol, side, quantity, price, stopPrice, venue.OrderTypeStopLossLimit, opts)
}

func (e *Engine) submitEntry(ctx context.Context, symbol string, side venue.Side, quantity, price, stopPrice float64, orderType venue.OrderType, opts OrderOptions) (*OrderResult, error) {
	if quantity <= 0 {
		return nil, validationErr("quantity", "must be positive")
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	res := &OrderResult{}
	traceID := uuid.NewString()

	if opts.Leverage > 1 && !opts.ReduceOnly {
		plan, err := e.RequestLeveragedEntry(ctx, symbol, side, quantity, opts.Leverage, 0)
		if err != nil {
			return nil, err
		}
		res.Plan = plan
		quantity = plan.FinalQuantity
		traceID = plan.TraceID
	} else {
		meta, err := e.venue.Instrument(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", symbol, err)
		}
		quantity = FormatQuantity(quantity, meta)
		if quantity <= 0 {
			return nil, validationErr("quantity", "below instrument minimum")
		}
		if price > 0 {
			price = RoundToTick(price, meta.TickSize)
		}
		if stopPrice > 0 {
			stopPrice = RoundToTick(stopPrice, meta.TickSize)
		}
	}

	order, err := e.venue.CreateOrder(ctx, venue.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        orderType,
		Quantity:    quantity,
		Price:       price,
		StopPrice:   stopPrice,
		TimeInForce: opts.TimeInForce,
		PostOnly:    opts.PostOnly,
		ReduceOnly:  opts.ReduceOnly,
		IsIsolated:  e.set.MarginMode.Isolated(),
	})
	if err != nil {
		e.journalAppend(ctx, journal.Record{
			TraceID: traceID, Symbol: symbol, Kind: journal.KindEntry, Leg: LegEntry,
			Status: journal.StatusFailed, Error: err.Error(),
		})
		return res, &VenueRejection{Leg: LegEntry, Err: err}
	}
	res.Order = order
	metrics.OrdersSubmitted.WithLabelValues(string(orderType), string(side)).Inc()

	entryPrice := price
	if entryPrice <= 0 && res.Plan != nil {
		entryPrice = res.Plan.Price
	}
	detail, _ := json.Marshal(map[string]any{
		"order_id": order.OrderID, "type": orderType, "side": side,
		"quantity": quantity, "price": entryPrice,
	})
	e.journalAppend(ctx, journal.Record{
		TraceID: traceID, Symbol: symbol, Kind: journal.KindEntry, Leg: LegEntry,
		Status: journal.StatusOK, Detail: string(detail),
	})

	if opts.TakeProfit > 0 && opts.StopLoss > 0 {
		outcome, perr := e.AttachProtection(ctx, symbol, side.Opposite(), quantity, opts.TakeProfit, opts.StopLoss, 0)
		res.Protection = outcome
		if perr != nil {
			// The entry is live; surface the protection failure without
			// hiding the order that did go through.
			logger.Errorf("entry %s %s filled but protection failed: %v", symbol, side, perr)
			return res, perr
		}
	}
	return res, nil
}

// CloseResult reports how a position was flattened and what debt was settled.
type CloseResult struct {
	Symbol          string       `json:"symbol"`
	Order           *venue.Order `json:"order"`
	ClosedQuantity  float64      `json:"closed_quantity"`
	CancelledOrders bool         `json:"cancelled_orders"`
	AutoRepaid      bool         `json:"auto_repaid"`
}

// ClosePosition flattens the position on symbol with a reduce-side market
// order. Open orders on the symbol are cancelled first so no stale stop or
// take-profit re-opens exposure after the flatten. With autoRepay the fill
// proceeds are applied to the outstanding loan in the same call.
func (e *Engine) ClosePosition(ctx context.Context, symbol string, autoRepay bool) (*CloseResult, error) {
	pos, err := e.Position(ctx, symbol)
	if err != nil {
		return nil, err
	}
	traceID := uuid.NewString()
	res := &CloseResult{Symbol: pos.Symbol, AutoRepaid: autoRepay}

	if err := e.venue.CancelAllOrders(ctx, pos.Symbol); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warnf("close %s: cancel open orders: %v", pos.Symbol, err)
		}
	} else {
		res.CancelledOrders = true
	}

	meta, err := e.venue.Instrument(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", pos.Symbol, err)
	}
	qty := FormatQuantity(pos.Size, meta)
	if qty <= 0 {
		return nil, validationErr("quantity", "position size below instrument minimum")
	}
	res.ClosedQuantity = qty

	order, err := e.venue.CreateOrder(ctx, venue.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       exitSideFor(pos.Side),
		Type:       venue.OrderTypeMarket,
		Quantity:   qty,
		ReduceOnly: autoRepay,
		IsIsolated: e.set.MarginMode.Isolated(),
	})
	detail, _ := json.Marshal(map[string]any{
		"side": pos.Side, "quantity": qty, "auto_repay": autoRepay,
	})
	if err != nil {
		e.journalAppend(ctx, journal.Record{
			TraceID: traceID, Symbol: pos.Symbol, Kind: journal.KindClose, Leg: LegClose,
			Status: journal.StatusFailed, Detail: string(detail), Error: err.Error(),
		})
		return nil, &VenueRejection{Leg: LegClose, Err: err}
	}
	res.Order = order
	metrics.OrdersSubmitted.WithLabelValues(string(venue.OrderTypeMarket), string(exitSideFor(pos.Side))).Inc()
	e.journalAppend(ctx, journal.Record{
		TraceID: traceID, Symbol: pos.Symbol, Kind: journal.KindClose, Leg: LegClose,
		Status: journal.StatusOK, Detail: string(detail),
	})
	logger.Infof("closed %s %s qty=%v auto_repay=%v", pos.Symbol, pos.Side, qty, autoRepay)
	return res, nil
}

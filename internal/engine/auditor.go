package engine

import (
	"context"
	"fmt"
	"sort"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
	"levex/internal/metrics"
)

// OrderRole classifies an open order relative to the position on its symbol.
type OrderRole string

const (
	RoleStopLoss   OrderRole = "stop_loss"
	RoleTakeProfit OrderRole = "take_profit"
	RoleEntry      OrderRole = "entry"
	RoleOther      OrderRole = "other"
)

// ClassifiedOrder pairs an open order with the role inferred for it.
type ClassifiedOrder struct {
	Order venue.Order `json:"order"`
	Role  OrderRole   `json:"role"`
}

// ProtectionStatus summarises what cover an open position currently has,
// including every open order with its inferred role.
type ProtectionStatus struct {
	Symbol        string            `json:"symbol"`
	HasProtection bool              `json:"has_protection"`
	HasStopLoss   bool              `json:"has_stop_loss"`
	HasTakeProfit bool              `json:"has_take_profit"`
	Orders        []ClassifiedOrder `json:"orders"`
}

// PositionProtection pairs a position with its protection audit.
type PositionProtection struct {
	Position   Position          `json:"position"`
	Protection *ProtectionStatus `json:"protection"`
}

// ClassifyOrder decides what role an open order plays for a position. The
// venue does not tag orders with intent, so the role is inferred from the
// order type, its side relative to the position, and where its price sits
// against the mark.
func ClassifyOrder(order venue.Order, pos *Position) OrderRole {
	if pos == nil {
		return RoleOther
	}
	exitSide := exitSideFor(pos.Side)
	if order.Side != exitSide {
		return RoleEntry
	}
	if order.Type.StopTriggered() {
		return RoleStopLoss
	}
	if order.Type == venue.OrderTypeLimit {
		// Only an exit-side limit priced favorably vs the mark reads as a
		// take-profit. A limit on the losing side of the mark has no stop
		// trigger and would fill immediately as a plain exit, so it must
		// never count as loss protection.
		if pos.Side == SideLong && order.Price > pos.MarkPrice {
			return RoleTakeProfit
		}
		if pos.Side == SideShort && order.Price > 0 && order.Price < pos.MarkPrice {
			return RoleTakeProfit
		}
		return RoleOther
	}
	return RoleOther
}

func exitSideFor(side string) venue.Side {
	if side == SideLong {
		return venue.SideSell
	}
	return venue.SideBuy
}

// CheckPositionProtection reports the protection status of one symbol's
// position. A position with no open orders at all is unprotected.
func (e *Engine) CheckPositionProtection(ctx context.Context, symbol string) (*ProtectionStatus, error) {
	return e.protectionStatus(ctx, symbol)
}

func (e *Engine) protectionStatus(ctx context.Context, symbol string) (*ProtectionStatus, error) {
	norm, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	pos, err := e.Position(ctx, norm)
	if err != nil {
		return nil, err
	}
	orders, err := e.venue.OpenOrders(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("open orders %s: %w", norm, err)
	}
	return auditOrders(norm, orders, pos), nil
}

func auditOrders(symbol string, orders []venue.Order, pos *Position) *ProtectionStatus {
	status := &ProtectionStatus{Symbol: symbol, Orders: make([]ClassifiedOrder, 0, len(orders))}
	for _, o := range orders {
		role := ClassifyOrder(o, pos)
		status.Orders = append(status.Orders, ClassifiedOrder{Order: o, Role: role})
		switch role {
		case RoleStopLoss:
			status.HasStopLoss = true
		case RoleTakeProfit:
			status.HasTakeProfit = true
		}
	}
	status.HasProtection = status.HasStopLoss
	return status
}

// UnprotectedPositions returns every open position that has no live stop-loss
// order, each paired with its protection audit and sorted by symbol. The
// monitor uses it each cycle; the unprotected gauge is refreshed as a side
// effect.
func (e *Engine) UnprotectedPositions(ctx context.Context) ([]PositionProtection, error) {
	positions, err := e.CurrentPositions(ctx)
	if err != nil {
		return nil, err
	}
	bare := make([]PositionProtection, 0, len(positions))
	for _, pos := range positions {
		orders, err := e.venue.OpenOrders(ctx, pos.Symbol)
		if err != nil {
			logger.Warnf("protection audit %s: open orders: %v", pos.Symbol, err)
			continue
		}
		status := auditOrders(pos.Symbol, orders, &pos)
		if !status.HasProtection {
			bare = append(bare, PositionProtection{Position: pos, Protection: status})
		}
	}
	sort.Slice(bare, func(i, j int) bool { return bare[i].Position.Symbol < bare[j].Position.Symbol })
	metrics.UnprotectedPositions.Set(float64(len(bare)))
	return bare, nil
}

// AddProtectionToPosition derives the exit side and size from the live
// position and attaches the take-profit/stop-loss pair to it.
func (e *Engine) AddProtectionToPosition(ctx context.Context, symbol string, takeProfit, stopLoss float64) (*Outcome, error) {
	pos, err := e.Position(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return e.AttachProtection(ctx, pos.Symbol, exitSideFor(pos.Side), pos.Size, takeProfit, stopLoss, 0)
}

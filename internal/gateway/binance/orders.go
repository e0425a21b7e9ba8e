package binance

import (
	"context"
	"fmt"
	"strings"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
	symbolpkg "levex/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
)

func (c *Client) CreateOrder(ctx context.Context, req venue.OrderRequest) (*venue.Order, error) {
	clean := symbolpkg.Binance.ToExchange(req.Symbol)
	if clean == "" {
		return nil, fmt.Errorf("create order: invalid symbol %q", req.Symbol)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("create order: quantity must be positive")
	}
	svc := c.api.NewCreateMarginOrderService().
		Symbol(clean).
		Side(binance.SideType(req.Side)).
		Quantity(formatFloat(req.Quantity)).
		SideEffectType(sideEffectFor(req)).
		IsIsolated(req.IsIsolated)

	orderType := binance.OrderType(req.Type)
	if req.PostOnly && req.Type == venue.OrderTypeLimit {
		orderType = binance.OrderTypeLimitMaker
	}
	svc = svc.Type(orderType)

	if req.Price > 0 {
		svc = svc.Price(formatFloat(req.Price))
	}
	if req.StopPrice > 0 {
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}
	if tif := resolveTimeInForce(req, orderType); tif != "" {
		svc = svc.TimeInForce(tif)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	var res *binance.CreateOrderResponse
	err := c.call("create_order", func() error {
		var err error
		res, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("create order: empty response")
	}
	out := &venue.Order{
		Symbol:        symbolpkg.Binance.FromExchange(res.Symbol),
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      optionalFloat(res.OrigQuantity),
		ExecutedQty:   optionalFloat(res.ExecutedQuantity),
		Price:         optionalFloat(res.Price),
		StopPrice:     req.StopPrice,
		Status:        string(res.Status),
		TimeInForce:   string(res.TimeInForce),
		ReduceOnly:    req.ReduceOnly,
		CreatedAt:     res.TransactTime,
	}
	return out, nil
}

func (c *Client) CreateOCO(ctx context.Context, req venue.OCORequest) (*venue.OCOResult, error) {
	clean := symbolpkg.Binance.ToExchange(req.Symbol)
	if clean == "" {
		return nil, fmt.Errorf("create oco: invalid symbol %q", req.Symbol)
	}
	tif := binance.TimeInForceTypeGTC
	if req.StopLimitTimeInForce != "" {
		tif = binance.TimeInForceType(req.StopLimitTimeInForce)
	}
	svc := c.api.NewCreateMarginOCOService().
		Symbol(clean).
		Side(binance.SideType(req.Side)).
		Quantity(formatFloat(req.Quantity)).
		Price(formatFloat(req.Price)).
		StopPrice(formatFloat(req.StopPrice)).
		StopLimitPrice(formatFloat(req.StopLimitPrice)).
		StopLimitTimeInForce(tif).
		IsIsolated(req.IsIsolated)
	if req.ReduceOnly {
		svc = svc.SideEffectType(binance.SideEffectTypeAutoRepay)
	}

	var res *binance.CreateMarginOCOResponse
	err := c.call("create_oco", func() error {
		var err error
		res, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("create oco: empty response")
	}
	out := &venue.OCOResult{
		OrderListID: res.OrderListID,
		Symbol:      symbolpkg.Binance.FromExchange(res.Symbol),
	}
	for _, ord := range res.Orders {
		if ord == nil {
			continue
		}
		out.Orders = append(out.Orders, venue.Order{
			Symbol:        symbolpkg.Binance.FromExchange(ord.Symbol),
			OrderID:       ord.OrderID,
			ClientOrderID: ord.ClientOrderID,
			Side:          req.Side,
			ReduceOnly:    req.ReduceOnly,
		})
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	clean := symbolpkg.Binance.ToExchange(symbol)
	if clean == "" || orderID <= 0 {
		return fmt.Errorf("cancel order: symbol and order id are required")
	}
	return c.call("cancel_order", func() error {
		_, err := c.api.NewCancelMarginOrderService().
			Symbol(clean).
			OrderID(orderID).
			Do(ctx)
		return err
	})
}

// CancelAllOrders cancels every open order on symbol one by one; the margin
// API has no bulk cancel that spans OCO lists reliably.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	var firstErr error
	for _, ord := range orders {
		if err := c.CancelOrder(ctx, symbol, ord.OrderID); err != nil {
			// An order filled or cancelled between list and cancel is fine.
			if strings.Contains(err.Error(), "Unknown order") {
				logger.Debugf("cancel all %s: order %d already gone", symbol, ord.OrderID)
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("cancel order %d: %w", ord.OrderID, err)
			}
		}
	}
	return firstErr
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	clean := symbolpkg.Binance.ToExchange(symbol)
	if clean == "" {
		return nil, fmt.Errorf("open orders: invalid symbol %q", symbol)
	}
	var raw []*binance.Order
	err := c.call("open_orders", func() error {
		var err error
		raw, err = c.api.NewListMarginOpenOrdersService().Symbol(clean).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]venue.Order, 0, len(raw))
	for _, ord := range raw {
		if ord == nil {
			continue
		}
		out = append(out, venue.Order{
			Symbol:        symbolpkg.Binance.FromExchange(ord.Symbol),
			OrderID:       ord.OrderID,
			ClientOrderID: ord.ClientOrderID,
			Side:          venue.Side(ord.Side),
			Type:          venue.OrderType(ord.Type),
			Quantity:      optionalFloat(ord.OrigQuantity),
			ExecutedQty:   optionalFloat(ord.ExecutedQuantity),
			Price:         optionalFloat(ord.Price),
			StopPrice:     optionalFloat(ord.StopPrice),
			Status:        string(ord.Status),
			TimeInForce:   string(ord.TimeInForce),
			CreatedAt:     ord.Time,
		})
	}
	return out, nil
}

func sideEffectFor(req venue.OrderRequest) binance.SideEffectType {
	switch {
	case req.ReduceOnly:
		// Margin has no native reduce-only flag; auto-repay is the closing
		// analogue, exits settle the loan as they fill.
		return binance.SideEffectTypeAutoRepay
	case req.AutoBorrow:
		return binance.SideEffectTypeMarginBuy
	default:
		return binance.SideEffectTypeNoSideEffect
	}
}

func resolveTimeInForce(req venue.OrderRequest, orderType binance.OrderType) binance.TimeInForceType {
	switch orderType {
	case binance.OrderTypeMarket, binance.OrderTypeLimitMaker:
		return ""
	}
	if req.TimeInForce != "" {
		return binance.TimeInForceType(strings.ToUpper(req.TimeInForce))
	}
	return binance.TimeInForceTypeGTC
}

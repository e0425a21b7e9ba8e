package binance

import (
	"context"
	"fmt"
	"strings"

	"levex/internal/metrics"
	symbolpkg "levex/internal/pkg/symbol"
)

func (c *Client) Borrow(ctx context.Context, asset string, amount float64, symbol string) (int64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" || amount <= 0 {
		return 0, fmt.Errorf("borrow: asset and positive amount are required")
	}
	svc := c.api.NewMarginLoanService().Asset(asset).Amount(formatFloat(amount))
	if clean := symbolpkg.Binance.ToExchange(symbol); clean != "" {
		svc = svc.IsolatedSymbol(clean)
	}
	var tranID int64
	err := c.call("borrow", func() error {
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		tranID = res.TranID
		return nil
	})
	metrics.CountBorrowOp("borrow", err)
	if err != nil {
		return 0, fmt.Errorf("borrow %s %v: %w", asset, amount, err)
	}
	return tranID, nil
}

func (c *Client) Repay(ctx context.Context, asset string, amount float64, symbol string) (int64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" || amount <= 0 {
		return 0, fmt.Errorf("repay: asset and positive amount are required")
	}
	svc := c.api.NewMarginRepayService().Asset(asset).Amount(formatFloat(amount))
	if clean := symbolpkg.Binance.ToExchange(symbol); clean != "" {
		svc = svc.IsolatedSymbol(clean)
	}
	var tranID int64
	err := c.call("repay", func() error {
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		tranID = res.TranID
		return nil
	})
	metrics.CountBorrowOp("repay", err)
	if err != nil {
		return 0, fmt.Errorf("repay %s %v: %w", asset, amount, err)
	}
	return tranID, nil
}

func (c *Client) MaxBorrowable(ctx context.Context, asset, symbol string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return 0, fmt.Errorf("max borrowable: asset is required")
	}
	svc := c.api.NewGetMaxBorrowableService().Asset(asset)
	if clean := symbolpkg.Binance.ToExchange(symbol); clean != "" {
		svc = svc.IsolatedSymbol(clean)
	}
	var amount float64
	err := c.call("max_borrowable", func() error {
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("empty response")
		}
		amount, err = requireFloat("maxBorrowable.amount", res.Amount)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("max borrowable %s: %w", asset, err)
	}
	return amount, nil
}

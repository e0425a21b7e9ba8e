package venue

import "context"

// Client is the execution interface against a single margin-trading account.
// All calls are remote; implementations own auth, transport and timeouts.
type Client interface {
	Name() string

	FetchBalance(ctx context.Context, mode MarginMode, symbol string) (*BalanceSnapshot, error)

	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	CancelAllOrders(ctx context.Context, symbol string) error

	OpenOrders(ctx context.Context, symbol string) ([]Order, error)

	CreateOCO(ctx context.Context, req OCORequest) (*OCOResult, error)

	// Borrow opens a margin loan and returns the venue transaction id.
	// symbol is only consulted in isolated mode.
	Borrow(ctx context.Context, asset string, amount float64, symbol string) (int64, error)

	Repay(ctx context.Context, asset string, amount float64, symbol string) (int64, error)

	// MaxBorrowable returns the venue-side additional borrow limit for asset.
	MaxBorrowable(ctx context.Context, asset, symbol string) (float64, error)

	// Instrument returns cached step/tick/min-notional metadata for symbol.
	Instrument(ctx context.Context, symbol string) (InstrumentMeta, error)
}

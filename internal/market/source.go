package market

import "context"

// Source is the read-only market-data collaborator. Symbols use the internal
// BASE/QUOTE form; implementations handle venue-specific naming.
type Source interface {
	// CurrentPrice returns the latest traded price for symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Candles returns up to limit klines for symbol at the given interval,
	// oldest first. The trailing unfinished bar is dropped.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

package engine

import (
	"context"
	"fmt"
	"strings"

	symbolpkg "levex/internal/pkg/symbol"
)

// Converter centralizes the unit conversions the leverage math needs:
// collateral totals arrive denominated in BTC while borrow limits and order
// sizing run in per-asset units. Keeping every conversion here keeps the
// rounding story in one testable place.
type Converter struct {
	source PriceSource
	quote  string
}

func NewConverter(source PriceSource, quoteAsset string) *Converter {
	return &Converter{source: source, quote: strings.ToUpper(strings.TrimSpace(quoteAsset))}
}

// BTCToAsset converts a BTC-denominated amount into units of asset.
func (c *Converter) BTCToAsset(ctx context.Context, amountBTC float64, asset string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return 0, fmt.Errorf("convert: target asset is required")
	}
	if asset == "BTC" {
		return amountBTC, nil
	}
	btcQuote, err := c.priceOf("BTC")
	if err != nil {
		return 0, err
	}
	btcPrice, err := c.source.CurrentPrice(ctx, btcQuote)
	if err != nil {
		return 0, &PricingUnavailableError{Symbol: btcQuote, Err: err}
	}
	quoteValue := decFromFloat(amountBTC).Mul(decFromFloat(btcPrice))
	if asset == c.quote {
		return decToFloat(quoteValue), nil
	}
	assetPair, err := c.priceOf(asset)
	if err != nil {
		return 0, err
	}
	assetPrice, err := c.source.CurrentPrice(ctx, assetPair)
	if err != nil {
		return 0, &PricingUnavailableError{Symbol: assetPair, Err: err}
	}
	if assetPrice <= 0 {
		return 0, &PricingUnavailableError{Symbol: assetPair, Err: fmt.Errorf("non-positive price")}
	}
	return decToFloat(quoteValue.Div(decFromFloat(assetPrice))), nil
}

// AssetToQuote values an asset amount in the configured quote currency.
func (c *Converter) AssetToQuote(ctx context.Context, amount float64, asset string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == c.quote {
		return amount, nil
	}
	pair, err := c.priceOf(asset)
	if err != nil {
		return 0, err
	}
	price, err := c.source.CurrentPrice(ctx, pair)
	if err != nil {
		return 0, &PricingUnavailableError{Symbol: pair, Err: err}
	}
	return decToFloat(decFromFloat(amount).Mul(decFromFloat(price))), nil
}

func (c *Converter) priceOf(asset string) (string, error) {
	pair := symbolpkg.Join(asset, c.quote)
	if pair == "" {
		return "", fmt.Errorf("convert: cannot build pair for asset %q", asset)
	}
	return pair, nil
}

// Liability is one outstanding loan row.
type Liability struct {
	Asset    string  `json:"asset"`
	Borrowed float64 `json:"borrowed"`
	Interest float64 `json:"interest"`
	Total    float64 `json:"total"`
}

// CurrentLiabilities lists every asset with outstanding debt.
func (e *Engine) CurrentLiabilities(ctx context.Context) ([]Liability, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Liability, 0, 4)
	for _, row := range snap.Assets {
		if row.Liability() <= 0 {
			continue
		}
		out = append(out, Liability{
			Asset:    row.Asset,
			Borrowed: row.Borrowed,
			Interest: row.Interest,
			Total:    row.Liability(),
		})
	}
	return out, nil
}

// TotalLiabilityValue returns the account's total debt valued in the quote
// currency.
func (e *Engine) TotalLiabilityValue(ctx context.Context) (float64, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return 0, err
	}
	return e.conv.BTCToAsset(ctx, snap.TotalLiabilityBTC, e.set.QuoteAsset)
}

// MarginLevel returns the latest margin level.
func (e *Engine) MarginLevel(ctx context.Context) (float64, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return 0, err
	}
	return snap.MarginLevel, nil
}

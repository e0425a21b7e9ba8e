package binance

import (
	"context"
	"fmt"
	"time"

	"levex/internal/gateway/venue"
	"levex/internal/pkg/convert"
	symbolpkg "levex/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
)

// Instrument returns step/tick/min-notional metadata for symbol, cached with
// a TTL so repeated sizing calls don't hammer exchangeInfo.
func (c *Client) Instrument(ctx context.Context, symbol string) (venue.InstrumentMeta, error) {
	norm := symbolpkg.Normalize(symbol)
	if norm == "" {
		return venue.InstrumentMeta{}, fmt.Errorf("instrument: invalid symbol %q", symbol)
	}
	c.instMu.RLock()
	entry, ok := c.instCache[norm]
	c.instMu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.cfg.InstrumentTTL {
		return entry.meta, nil
	}

	clean := symbolpkg.Binance.ToExchange(norm)
	var info *binance.ExchangeInfo
	err := c.call("exchange_info", func() error {
		var err error
		info, err = c.api.NewExchangeInfoService().Symbols(clean).Do(ctx)
		return err
	})
	if err != nil {
		if ok {
			// Stale metadata beats failing a sizing call outright.
			return entry.meta, nil
		}
		return venue.InstrumentMeta{}, fmt.Errorf("exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != clean {
			continue
		}
		meta, err := buildInstrumentMeta(norm, s)
		if err != nil {
			return venue.InstrumentMeta{}, err
		}
		c.instMu.Lock()
		c.instCache[norm] = cachedInstrument{meta: meta, fetchedAt: time.Now()}
		c.instMu.Unlock()
		return meta, nil
	}
	return venue.InstrumentMeta{}, fmt.Errorf("exchange info: symbol %s not found", symbol)
}

func buildInstrumentMeta(norm string, s binance.Symbol) (venue.InstrumentMeta, error) {
	meta := venue.InstrumentMeta{
		Symbol:     norm,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}
	lot := s.LotSizeFilter()
	if lot == nil {
		return meta, fmt.Errorf("exchange info %s: LOT_SIZE filter missing", norm)
	}
	var err error
	if meta.StepSize, err = requireFloat("stepSize", lot.StepSize); err != nil {
		return meta, err
	}
	meta.MinQty = optionalFloat(lot.MinQuantity)
	price := s.PriceFilter()
	if price == nil {
		return meta, fmt.Errorf("exchange info %s: PRICE_FILTER missing", norm)
	}
	if meta.TickSize, err = requireFloat("tickSize", price.TickSize); err != nil {
		return meta, err
	}
	meta.MinNotional = minNotionalOf(s)
	return meta, nil
}

// minNotionalOf digs the notional floor out of the raw filter list; Binance
// has shipped it as both MIN_NOTIONAL and NOTIONAL over time.
func minNotionalOf(s binance.Symbol) float64 {
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "MIN_NOTIONAL", "NOTIONAL":
			if v := convert.ToFloat64(f["minNotional"]); v > 0 {
				return v
			}
		}
	}
	return 0
}

package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"levex/internal/market"
	symbolpkg "levex/internal/pkg/symbol"
	"levex/internal/scheduler"

	"github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// CurrentPrice implements market.Source.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	clean := symbolpkg.Binance.ToExchange(symbol)
	if clean == "" {
		return 0, fmt.Errorf("current price: invalid symbol %q", symbol)
	}
	var prices []*binance.SymbolPrice
	err := c.call("list_prices", func() error {
		var err error
		prices, err = c.api.NewListPricesService().Symbol(clean).Do(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != clean {
			continue
		}
		val, err := requireFloat("price", p.Price)
		if err != nil {
			return 0, err
		}
		if val <= 0 {
			return 0, fmt.Errorf("fetch price %s: non-positive price %v", symbol, val)
		}
		return val, nil
	}
	return 0, fmt.Errorf("fetch price %s: no ticker returned", symbol)
}

// Candles implements market.Source. The trailing unfinished bar is dropped.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	clean := symbolpkg.Binance.ToExchange(symbol)
	if clean == "" {
		return nil, fmt.Errorf("candles: invalid symbol %q", symbol)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if _, ok := scheduler.ParseIntervalDuration(interval); !ok {
		return nil, fmt.Errorf("candles: invalid interval %q", interval)
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	var kls []*binance.Kline
	err := c.call("klines", func() error {
		var err error
		kls, err = c.api.NewKlinesService().Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      optionalFloat(kl.Open),
			High:      optionalFloat(kl.High),
			Low:       optionalFloat(kl.Low),
			Close:     optionalFloat(kl.Close),
			Volume:    optionalFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return market.DropUnclosed(out, time.Now()), nil
}

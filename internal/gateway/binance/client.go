package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"levex/internal/gateway/venue"
	"levex/internal/metrics"
	"levex/internal/pkg/circuit"
	symbolpkg "levex/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
)

// Client implements venue.Client and market.Source against Binance margin.
type Client struct {
	cfg     Config
	api     *binance.Client
	breaker *circuit.Breaker

	instMu    sync.RWMutex
	instCache map[string]cachedInstrument
}

type cachedInstrument struct {
	meta      venue.InstrumentMeta
	fetchedAt time.Time
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance: api key and secret are required")
	}
	api := binance.NewClient(final.APIKey, final.APISecret)
	api.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	api.HTTPClient = httpClient
	return &Client{
		cfg:       final,
		api:       api,
		breaker:   circuit.NewBreaker("binance", final.BreakerThreshold, final.BreakerCooldown),
		instCache: make(map[string]cachedInstrument),
	}, nil
}

func (c *Client) Name() string { return "binance-margin" }

// call routes every remote invocation through the circuit breaker and
// records latency + error metrics per operation.
func (c *Client) call(op string, fn func() error) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("binance: circuit open, %s rejected", op)
	}
	start := time.Now()
	err := fn()
	metrics.ObserveVenueCall(op, time.Since(start), err)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *Client) FetchBalance(ctx context.Context, mode venue.MarginMode, symbol string) (*venue.BalanceSnapshot, error) {
	if mode.Isolated() {
		return c.fetchIsolatedBalance(ctx, symbol)
	}
	var acct *binance.MarginAccount
	err := c.call("fetch_balance", func() error {
		var err error
		acct, err = c.api.NewGetMarginAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch margin account: %w", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("fetch margin account: empty response")
	}
	snap := &venue.BalanceSnapshot{
		MarginMode:    venue.MarginCross,
		BorrowEnabled: acct.BorrowEnabled,
		Assets:        make(map[string]venue.AssetBalance, len(acct.UserAssets)),
		FetchedAt:     time.Now(),
	}
	if snap.MarginLevel, err = requireFloat("marginLevel", acct.MarginLevel); err != nil {
		return nil, err
	}
	if snap.TotalAssetBTC, err = requireFloat("totalAssetOfBtc", acct.TotalAssetOfBTC); err != nil {
		return nil, err
	}
	if snap.TotalLiabilityBTC, err = requireFloat("totalLiabilityOfBtc", acct.TotalLiabilityOfBTC); err != nil {
		return nil, err
	}
	if snap.TotalNetAssetBTC, err = requireFloat("totalNetAssetOfBtc", acct.TotalNetAssetOfBTC); err != nil {
		return nil, err
	}
	for _, ua := range acct.UserAssets {
		row, err := parseUserAsset(ua.Asset, ua.Free, ua.Locked, ua.Borrowed, ua.Interest, ua.NetAsset)
		if err != nil {
			return nil, err
		}
		snap.Assets[row.Asset] = row
	}
	return snap, nil
}

func (c *Client) fetchIsolatedBalance(ctx context.Context, symbol string) (*venue.BalanceSnapshot, error) {
	clean := symbolpkg.Binance.ToExchange(symbol)
	if clean == "" {
		return nil, fmt.Errorf("isolated balance requires a symbol")
	}
	var acct *binance.IsolatedMarginAccount
	err := c.call("fetch_balance", func() error {
		var err error
		acct, err = c.api.NewGetIsolatedMarginAccountService().Symbols(clean).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch isolated margin account: %w", err)
	}
	if acct == nil || len(acct.Assets) == 0 {
		return nil, fmt.Errorf("isolated margin account has no entry for %s", symbol)
	}
	pair := acct.Assets[0]
	snap := &venue.BalanceSnapshot{
		MarginMode: venue.MarginIsolated,
		Assets:     make(map[string]venue.AssetBalance, 2),
		FetchedAt:  time.Now(),
	}
	if snap.MarginLevel, err = requireFloat("marginLevel", pair.MarginLevel); err != nil {
		return nil, err
	}
	if snap.TotalAssetBTC, err = requireFloat("totalAssetOfBtc", acct.TotalAssetOfBTC); err != nil {
		return nil, err
	}
	if snap.TotalLiabilityBTC, err = requireFloat("totalLiabilityOfBtc", acct.TotalLiabilityOfBTC); err != nil {
		return nil, err
	}
	if snap.TotalNetAssetBTC, err = requireFloat("totalNetAssetOfBtc", acct.TotalNetAssetOfBTC); err != nil {
		return nil, err
	}
	base, err := parseUserAsset(pair.BaseAsset.Asset, pair.BaseAsset.Free, pair.BaseAsset.Locked,
		pair.BaseAsset.Borrowed, pair.BaseAsset.Interest, pair.BaseAsset.NetAsset)
	if err != nil {
		return nil, err
	}
	quote, err := parseUserAsset(pair.QuoteAsset.Asset, pair.QuoteAsset.Free, pair.QuoteAsset.Locked,
		pair.QuoteAsset.Borrowed, pair.QuoteAsset.Interest, pair.QuoteAsset.NetAsset)
	if err != nil {
		return nil, err
	}
	snap.Assets[base.Asset] = base
	snap.Assets[quote.Asset] = quote
	return snap, nil
}

func parseUserAsset(asset, free, locked, borrowed, interest, netAsset string) (venue.AssetBalance, error) {
	row := venue.AssetBalance{Asset: strings.ToUpper(strings.TrimSpace(asset))}
	if row.Asset == "" {
		return row, fmt.Errorf("balance payload: asset name missing")
	}
	var err error
	if row.Free, err = requireFloat(row.Asset+".free", free); err != nil {
		return row, err
	}
	if row.Locked, err = requireFloat(row.Asset+".locked", locked); err != nil {
		return row, err
	}
	if row.Borrowed, err = requireFloat(row.Asset+".borrowed", borrowed); err != nil {
		return row, err
	}
	if row.Interest, err = requireFloat(row.Asset+".interest", interest); err != nil {
		return row, err
	}
	if row.NetAsset, err = requireFloat(row.Asset+".netAsset", netAsset); err != nil {
		return row, err
	}
	return row, nil
}

// requireFloat parses a numeric string the venue marks as required.
// Missing or malformed values abort the whole operation rather than leak a
// zero into risk math.
func requireFloat(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("venue payload: required field %s missing", field)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("venue payload: field %s unparsable (%q): %w", field, raw, err)
	}
	return f, nil
}

// optionalFloat parses best-effort; zero when absent.
func optionalFloat(raw string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

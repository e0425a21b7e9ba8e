// Package engine implements the leveraged margin trading core: borrow-aware
// order sizing, protective order orchestration, protection auditing and
// margin risk scoring against a single venue account.
package engine

import (
	"context"
	"fmt"
	"time"

	"levex/internal/gateway/notifier"
	"levex/internal/gateway/venue"
	"levex/internal/logger"
	symbolpkg "levex/internal/pkg/symbol"
	"levex/internal/store/journal"
)

// Settings carries the trading-side knobs; zero values fall back to the
// documented defaults.
type Settings struct {
	MarginMode venue.MarginMode
	QuoteAsset string

	// MarginSafetyLevel is the minimum margin level the borrow capacity
	// calculation steers the account toward.
	MarginSafetyLevel float64

	// Protective-order buffer: min(BufferQuote, BufferPct × free balance) is
	// reserved out of sizing so a follow-up protective order always funds.
	BufferQuote float64
	BufferPct   float64

	DefaultLeverage int

	// DustNotional filters balance residue below this quote value out of
	// position derivation.
	DustNotional float64

	// LiabilityDustBTC treats debts below this BTC value as zero when
	// picking the borrow-capacity formula.
	LiabilityDustBTC float64

	BorrowSettleAttempts int
	BorrowSettleDelay    time.Duration
}

func (s Settings) withDefaults() Settings {
	out := s
	if out.MarginMode == "" {
		out.MarginMode = venue.MarginCross
	}
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	if out.MarginSafetyLevel <= 0 {
		out.MarginSafetyLevel = 1.5
	}
	if out.BufferQuote <= 0 {
		out.BufferQuote = 10
	}
	if out.BufferPct <= 0 {
		out.BufferPct = 0.10
	}
	if out.DefaultLeverage <= 0 {
		out.DefaultLeverage = 1
	}
	if out.DustNotional <= 0 {
		out.DustNotional = 1.0
	}
	if out.LiabilityDustBTC <= 0 {
		out.LiabilityDustBTC = 1e-7
	}
	if out.BorrowSettleAttempts <= 0 {
		out.BorrowSettleAttempts = 5
	}
	if out.BorrowSettleDelay <= 0 {
		out.BorrowSettleDelay = 400 * time.Millisecond
	}
	return out
}

// Engine is the trading core. All state is remote; the engine itself only
// holds collaborators and settings.
type Engine struct {
	venue   venue.Client
	source  PriceSource
	conv    *Converter
	journal *journal.Store
	notify  notifier.TextNotifier
	set     Settings
}

// PriceSource is the slice of market data the engine consumes directly.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

type Params struct {
	Venue    venue.Client
	Source   PriceSource
	Journal  *journal.Store
	Notifier notifier.TextNotifier
	Settings Settings
}

func New(p Params) (*Engine, error) {
	if p.Venue == nil {
		return nil, fmt.Errorf("engine requires a venue client")
	}
	if p.Source == nil {
		return nil, fmt.Errorf("engine requires a price source")
	}
	set := p.Settings.withDefaults()
	notify := p.Notifier
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Engine{
		venue:   p.Venue,
		source:  p.Source,
		conv:    NewConverter(p.Source, set.QuoteAsset),
		journal: p.Journal,
		notify:  notify,
		set:     set,
	}, nil
}

// Settings returns the effective settings after defaulting.
func (e *Engine) Settings() Settings { return e.set }

// normalizeSymbol maps any accepted spelling ("btcusdt", "BTC/USDT") onto
// the canonical BASE/QUOTE form every engine entry point works with. Venue
// calls, journal keys and position lookups all share this one form.
func normalizeSymbol(symbol string) (string, error) {
	norm := symbolpkg.Normalize(symbol)
	if norm == "" {
		return "", validationErr("symbol", fmt.Sprintf("invalid: %q", symbol))
	}
	return norm, nil
}

// borrowScope returns the symbol argument for loan endpoints. Cross-margin
// loans are account wide, so the pair is only forwarded in isolated mode.
func (e *Engine) borrowScope(symbol string) string {
	if e.set.MarginMode.Isolated() {
		return symbol
	}
	return ""
}

// snapshot fetches the balance view for the configured margin mode. symbol
// is only consulted in isolated mode.
func (e *Engine) snapshot(ctx context.Context, symbol string) (*venue.BalanceSnapshot, error) {
	snap, err := e.venue.FetchBalance(ctx, e.set.MarginMode, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	return snap, nil
}

func (e *Engine) journalAppend(ctx context.Context, rec journal.Record) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(ctx, rec); err != nil {
		// Journal loss must not fail the trading call it records.
		logger.Warnf("journal append failed: %v", err)
	}
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"levex/internal/logger"
	symbolpkg "levex/internal/pkg/symbol"
)

// Position is a derived snapshot, recomputed on demand from the balance view
// and the operation journal. It is never persisted.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // long | short
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	Notional      float64 `json:"notional"`
	Pnl           float64 `json:"pnl"`
	PnlPercentage float64 `json:"pnl_percentage"`
	MarginMode    string  `json:"margin_mode"`
}

const (
	SideLong  = "long"
	SideShort = "short"
)

// CurrentPositions derives open positions from the margin balance snapshot:
// positive net holdings of a non-quote asset read as long, borrowed base
// beyond holdings as short. Entry price comes from the journal's last entry
// record when available, else mark price, which is an approximation when
// fills span several orders.
func (e *Engine) CurrentPositions(ctx context.Context) ([]Position, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return nil, err
	}
	quote := e.set.QuoteAsset
	out := make([]Position, 0, 4)
	for _, row := range snap.Assets {
		if row.Asset == quote || row.Asset == "" {
			continue
		}
		net := row.NetAsset
		size := net
		side := SideLong
		if net < 0 {
			size = -net
			side = SideShort
		}
		if size <= 0 {
			continue
		}
		sym := symbolpkg.Join(row.Asset, quote)
		mark, err := e.source.CurrentPrice(ctx, sym)
		if err != nil {
			logger.Warnf("positions: no price for %s, skipping: %v", sym, err)
			continue
		}
		notional := size * mark
		if notional < e.set.DustNotional {
			continue
		}
		pos := Position{
			Symbol:     sym,
			Side:       side,
			Size:       size,
			MarkPrice:  mark,
			Notional:   notional,
			MarginMode: string(e.set.MarginMode),
		}
		pos.EntryPrice = e.lastEntryPrice(ctx, sym, mark)
		pos.Pnl, pos.PnlPercentage = positionPnl(side, size, pos.EntryPrice, mark)
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Position returns the open position for symbol or ErrNotFound.
func (e *Engine) Position(ctx context.Context, symbol string) (*Position, error) {
	norm, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	positions, err := e.CurrentPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == norm {
			return &positions[i], nil
		}
	}
	return nil, fmt.Errorf("position %s: %w", norm, ErrNotFound)
}

func (e *Engine) lastEntryPrice(ctx context.Context, symbol string, fallback float64) float64 {
	if e.journal == nil {
		return fallback
	}
	rec, err := e.journal.LastEntry(ctx, symbol)
	if err != nil || rec == nil {
		return fallback
	}
	var detail struct {
		Price float64 `json:"price"`
	}
	if json.Unmarshal([]byte(rec.Detail), &detail) == nil && detail.Price > 0 {
		return detail.Price
	}
	return fallback
}

func positionPnl(side string, size, entry, mark float64) (pnl, pct float64) {
	if entry <= 0 || size <= 0 {
		return 0, 0
	}
	diff := decFromFloat(mark).Sub(decFromFloat(entry))
	if side == SideShort {
		diff = diff.Neg()
	}
	pnl = decToFloat(diff.Mul(decFromFloat(size)))
	pct = decToFloat(diff.Div(decFromFloat(entry)).Mul(decFromFloat(100)))
	return pnl, pct
}

// PositionSummary renders a short operator-facing digest of open positions.
func (e *Engine) PositionSummary(ctx context.Context) (string, error) {
	positions, err := e.CurrentPositions(ctx)
	if err != nil {
		return "", err
	}
	if len(positions) == 0 {
		return "no open positions", nil
	}
	var b strings.Builder
	var totalNotional, totalPnl float64
	for _, p := range positions {
		totalNotional += p.Notional
		totalPnl += p.Pnl
		fmt.Fprintf(&b, "%s %s size=%v entry=%v mark=%v pnl=%.2f (%.2f%%)\n",
			p.Symbol, p.Side, p.Size, p.EntryPrice, p.MarkPrice, p.Pnl, p.PnlPercentage)
	}
	fmt.Fprintf(&b, "total: %d positions notional=%.2f pnl=%.2f", len(positions), totalNotional, totalPnl)
	return b.String(), nil
}

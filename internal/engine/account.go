package engine

import (
	"context"
	"time"

	"levex/internal/metrics"
)

// AccountOverview is the consolidated account view served over the API:
// solvency, positions, outstanding loans, and the scored risk tier.
type AccountOverview struct {
	MarginMode       string         `json:"margin_mode"`
	MarginLevel      float64        `json:"margin_level"`
	TotalAssetBTC    float64        `json:"total_asset_btc"`
	TotalNetAssetBTC float64        `json:"total_net_asset_btc"`
	LiabilityQuote   float64        `json:"liability_quote"`
	QuoteAsset       string         `json:"quote_asset"`
	QuoteFree        float64        `json:"quote_free"`
	BorrowEnabled    bool           `json:"borrow_enabled"`
	Positions        []Position     `json:"positions"`
	Liabilities      []Liability    `json:"liabilities"`
	Risk             RiskAssessment `json:"risk"`
	FetchedAt        time.Time      `json:"fetched_at"`
}

// GetAccountOverview assembles the full account picture from one balance
// snapshot. The margin level and risk tier gauges are refreshed here, so a
// scrape after any overview call sees current numbers.
func (e *Engine) GetAccountOverview(ctx context.Context) (*AccountOverview, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return nil, err
	}
	positions, err := e.CurrentPositions(ctx)
	if err != nil {
		return nil, err
	}
	liabilities, err := e.CurrentLiabilities(ctx)
	if err != nil {
		return nil, err
	}
	liabilityQuote, err := e.conv.BTCToAsset(ctx, snap.TotalLiabilityBTC, e.set.QuoteAsset)
	if err != nil {
		return nil, err
	}

	risk := AssessRisk(snap)
	metrics.MarginLevel.Set(snap.MarginLevel)
	metrics.SetRiskTier(string(risk.Tier), AllTiers())

	return &AccountOverview{
		MarginMode:       string(e.set.MarginMode),
		MarginLevel:      snap.MarginLevel,
		TotalAssetBTC:    snap.TotalAssetBTC,
		TotalNetAssetBTC: snap.TotalNetAssetBTC,
		LiabilityQuote:   liabilityQuote,
		QuoteAsset:       e.set.QuoteAsset,
		QuoteFree:        snap.Asset(e.set.QuoteAsset).Free,
		BorrowEnabled:    snap.BorrowEnabled,
		Positions:        positions,
		Liabilities:      liabilities,
		Risk:             risk,
		FetchedAt:        snap.FetchedAt,
	}, nil
}

// LiquidationRisk scores the account's current margin level. It is the cheap
// variant of GetAccountOverview for the monitor's per-cycle check.
func (e *Engine) LiquidationRisk(ctx context.Context) (*RiskAssessment, error) {
	snap, err := e.snapshot(ctx, "")
	if err != nil {
		return nil, err
	}
	risk := AssessRisk(snap)
	metrics.MarginLevel.Set(snap.MarginLevel)
	metrics.SetRiskTier(string(risk.Tier), AllTiers())
	return &risk, nil
}

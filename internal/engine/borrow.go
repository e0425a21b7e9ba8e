package engine

import (
	"context"

	"levex/internal/gateway/venue"
	"levex/internal/logger"
)

// BorrowCapacity computes the safe additional borrow for asset, in asset
// units. The result is the tighter of the local margin-safety cap and the
// venue's own limit.
//
// Local cap: with no outstanding liability the account may lever its net
// collateral twice over (3x total exposure); with debt outstanding the cap
// keeps margin level at or above safetyLevel:
//
//	cap = max(0, netAsset/safetyLevel − currentLiability)
//
// Once margin level is already at HIGH or worse, additional borrowing is
// blocked outright.
func (e *Engine) BorrowCapacity(ctx context.Context, snap *venue.BalanceSnapshot, asset, symbol string, safetyLevel float64) (float64, error) {
	if safetyLevel <= 0 {
		safetyLevel = e.set.MarginSafetyLevel
	}
	liabilityBTC := snap.TotalLiabilityBTC
	hasDebt := liabilityBTC > e.set.LiabilityDustBTC
	if hasDebt && ScoreMarginLevel(snap.MarginLevel).WorseOrEqual(TierHigh) {
		logger.Warnf("borrow capacity %s: margin level %.3f blocks new borrowing", asset, snap.MarginLevel)
		return 0, nil
	}

	var capBTC float64
	if !hasDebt {
		capBTC = 2 * snap.TotalNetAssetBTC
	} else {
		capBTC = snap.TotalNetAssetBTC/safetyLevel - liabilityBTC
		if capBTC < 0 {
			capBTC = 0
		}
	}
	localCap, err := e.conv.BTCToAsset(ctx, capBTC, asset)
	if err != nil {
		return 0, &BorrowCapacityUnknownError{Asset: asset, Err: err}
	}

	venueCap, err := e.venue.MaxBorrowable(ctx, asset, e.borrowScope(symbol))
	if err != nil {
		return 0, &BorrowCapacityUnknownError{Asset: asset, Err: err}
	}
	if venueCap < localCap {
		return venueCap, nil
	}
	return localCap, nil
}

// MaxBorrowableResult pairs the venue limit with the engine's safety cap.
type MaxBorrowableResult struct {
	Asset      string  `json:"asset"`
	VenueLimit float64 `json:"venue_limit"`
	SafeLimit  float64 `json:"safe_limit"`
}

// MaxBorrowable reports both the venue's raw borrow limit and the tighter
// margin-safety cap for asset.
func (e *Engine) MaxBorrowable(ctx context.Context, asset, symbol string) (*MaxBorrowableResult, error) {
	if symbol != "" {
		norm, err := normalizeSymbol(symbol)
		if err != nil {
			return nil, err
		}
		symbol = norm
	}
	venueCap, err := e.venue.MaxBorrowable(ctx, asset, e.borrowScope(symbol))
	if err != nil {
		return nil, &BorrowCapacityUnknownError{Asset: asset, Err: err}
	}
	snap, err := e.snapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	safe, err := e.BorrowCapacity(ctx, snap, asset, symbol, e.set.MarginSafetyLevel)
	if err != nil {
		return nil, err
	}
	return &MaxBorrowableResult{Asset: asset, VenueLimit: venueCap, SafeLimit: safe}, nil
}

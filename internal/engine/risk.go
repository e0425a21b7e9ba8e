package engine

import "levex/internal/gateway/venue"

// RiskTier is the discrete solvency bucket derived from margin level.
type RiskTier string

const (
	TierLow                 RiskTier = "LOW"
	TierMedium              RiskTier = "MEDIUM"
	TierHigh                RiskTier = "HIGH"
	TierCritical            RiskTier = "CRITICAL"
	TierLiquidationImminent RiskTier = "LIQUIDATION_IMMINENT"
)

// AllTiers lists tiers from safest to worst, for gauge labelling.
func AllTiers() []string {
	return []string{
		string(TierLow), string(TierMedium), string(TierHigh),
		string(TierCritical), string(TierLiquidationImminent),
	}
}

// ScoreMarginLevel maps margin level to a tier. Thresholds are inclusive on
// the safe side: exactly 3.0 is LOW, exactly 1.5 is HIGH.
func ScoreMarginLevel(level float64) RiskTier {
	switch {
	case level >= 3.0:
		return TierLow
	case level >= 2.0:
		return TierMedium
	case level >= 1.5:
		return TierHigh
	case level >= 1.1:
		return TierCritical
	default:
		return TierLiquidationImminent
	}
}

// Recommendation returns the operator-facing guidance for the tier.
func (t RiskTier) Recommendation() string {
	switch t {
	case TierLow:
		return "Healthy margin. Normal operations; additional leverage available."
	case TierMedium:
		return "Moderate leverage in use. Monitor positions; avoid maximum-size entries."
	case TierHigh:
		return "Elevated risk. New borrowing is blocked; consider reducing exposure."
	case TierCritical:
		return "Critical margin level. Reduce positions or add collateral immediately."
	case TierLiquidationImminent:
		return "Liquidation imminent. Close positions and repay loans now."
	default:
		return "Unknown tier."
	}
}

// WorseOrEqual reports whether t is at least as risky as other.
func (t RiskTier) WorseOrEqual(other RiskTier) bool {
	return tierRank(t) >= tierRank(other)
}

func tierRank(t RiskTier) int {
	switch t {
	case TierLow:
		return 0
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	case TierLiquidationImminent:
		return 4
	default:
		return -1
	}
}

// RiskAssessment pairs the raw solvency numbers with their tier.
type RiskAssessment struct {
	MarginLevel       float64  `json:"margin_level"`
	TotalAssetBTC     float64  `json:"total_asset_btc"`
	TotalLiabilityBTC float64  `json:"total_liability_btc"`
	Tier              RiskTier `json:"risk_tier"`
	Recommendation    string   `json:"recommendation"`
}

// AssessRisk scores one balance snapshot.
func AssessRisk(snap *venue.BalanceSnapshot) RiskAssessment {
	tier := ScoreMarginLevel(snap.MarginLevel)
	return RiskAssessment{
		MarginLevel:       snap.MarginLevel,
		TotalAssetBTC:     snap.TotalAssetBTC,
		TotalLiabilityBTC: snap.TotalLiabilityBTC,
		Tier:              tier,
		Recommendation:    tier.Recommendation(),
	}
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"levex/internal/gateway/venue"
)

func TestScoreMarginLevel(t *testing.T) {
	cases := []struct {
		level float64
		want  RiskTier
	}{
		{3.5, TierLow},
		{2.5, TierMedium},
		{1.7, TierHigh},
		{1.2, TierCritical},
		{1.0, TierLiquidationImminent},
		// Breakpoints land on the safer side.
		{3.0, TierLow},
		{2.0, TierMedium},
		{1.5, TierHigh},
		{1.1, TierCritical},
		{1.0999, TierLiquidationImminent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScoreMarginLevel(tc.level), "level %v", tc.level)
	}
}

func TestRiskTierOrdering(t *testing.T) {
	assert.True(t, TierHigh.WorseOrEqual(TierHigh))
	assert.True(t, TierCritical.WorseOrEqual(TierHigh))
	assert.True(t, TierLiquidationImminent.WorseOrEqual(TierCritical))
	assert.False(t, TierMedium.WorseOrEqual(TierHigh))
	assert.False(t, TierLow.WorseOrEqual(TierMedium))
}

func TestRecommendationPerTier(t *testing.T) {
	for _, tier := range []RiskTier{TierLow, TierMedium, TierHigh, TierCritical, TierLiquidationImminent} {
		assert.NotEmpty(t, tier.Recommendation())
	}
}

func TestAssessRisk(t *testing.T) {
	snap := &venue.BalanceSnapshot{
		MarginLevel:       1.3,
		TotalAssetBTC:     2.6,
		TotalLiabilityBTC: 2.0,
	}
	risk := AssessRisk(snap)

	assert.Equal(t, TierCritical, risk.Tier)
	assert.Equal(t, 1.3, risk.MarginLevel)
	assert.Equal(t, 2.0, risk.TotalLiabilityBTC)
	assert.NotEmpty(t, risk.Recommendation)
}

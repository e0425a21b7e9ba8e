package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levex/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	return out
}

func TestStrictlyDecreasing(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		n      int
		want   bool
	}{
		{"last three decreasing", []float64{1, 5, 4, 3}, 3, true},
		{"exactly n values", []float64{3, 2, 1}, 3, true},
		{"older rise outside the window ignored", []float64{1, 9, 5, 2}, 3, true},
		{"equal adjacent values", []float64{5, 4, 4, 3}, 4, false},
		{"rising tail", []float64{5, 4, 6}, 3, false},
		{"window larger than series", []float64{2, 1}, 3, false},
		{"window below two", []float64{5, 4, 3}, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StrictlyDecreasing(tc.series, tc.n))
		})
	}
}

func TestVolumeSpike(t *testing.T) {
	candles := make([]market.Candle, 21)
	for i := range candles {
		candles[i] = market.Candle{Close: 100, Volume: 10}
	}
	candles[20].Volume = 45

	latest, mean, err := VolumeSpike(candles, 20)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, latest, 1e-12)
	assert.InDelta(t, 10.0, mean, 1e-12)

	// window+1 candles is the minimum; one fewer is an error.
	_, _, err = VolumeSpike(candles[:20], 20)
	assert.Error(t, err)
}

func TestLatestRSI_Bounds(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}

	up, err := LatestRSI(candlesFromCloses(rising), 0)
	require.NoError(t, err)
	assert.Greater(t, up, 70.0)

	down, err := LatestRSI(candlesFromCloses(falling), 0)
	require.NoError(t, err)
	assert.Less(t, down, 30.0)

	// period+1 closes is the minimum.
	_, err = LatestRSI(candlesFromCloses(rising[:14]), 14)
	assert.Error(t, err)
}

func TestMACDHistogram_RequiresWarmup(t *testing.T) {
	short := candlesFromCloses(make([]float64, MACDSlow+MACDSignal-1))
	_, err := MACDHistogram(short)
	assert.Error(t, err)

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	hist, err := MACDHistogram(candlesFromCloses(closes))
	require.NoError(t, err)
	assert.NotEmpty(t, hist)
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"levex/internal/gateway/venue"
)

func newSizerEngine(t *testing.T, v *MockVenue, s *MockSource) *Engine {
	t.Helper()
	eng, err := New(Params{
		Venue:  v,
		Source: s,
		Settings: Settings{
			BorrowSettleAttempts: 1,
			BorrowSettleDelay:    time.Millisecond,
		},
	})
	assert.NoError(t, err)
	return eng
}

func TestRequestLeveragedEntry_NoBorrowNeeded(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newSizerEngine(t, v, s)

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	// 1000 USDT free; 0.002 BTC at 5x needs 500, usable is 990.
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(
		crossSnapshot(999, 0.02, 0, map[string]venue.AssetBalance{
			"USDT": {Asset: "USDT", Free: 1000},
		}), nil)

	plan, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0.002, 5, 0)

	assert.NoError(t, err)
	assert.Equal(t, "BTC/USDT", plan.Symbol)
	assert.Equal(t, "USDT", plan.BorrowAsset)
	assert.InDelta(t, 10.0, plan.Buffer, 1e-9)
	assert.Zero(t, plan.BorrowedAmount)
	assert.False(t, plan.Adjusted)
	assert.InDelta(t, 0.002, plan.FinalQuantity, 1e-12)
	v.AssertNotCalled(t, "Borrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestLeveragedEntry_BorrowsShortfall(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newSizerEngine(t, v, s)

	before := crossSnapshot(999, 0.02, 0, map[string]venue.AssetBalance{
		"USDT": {Asset: "USDT", Free: 200},
	})
	after := crossSnapshot(5, 0.02, 0.0062, map[string]venue.AssetBalance{
		"USDT": {Asset: "USDT", Free: 510, Borrowed: 310},
	})

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(before, nil).Once()
	// Cross-margin loans are account wide: no pair on the loan endpoints.
	v.On("MaxBorrowable", mock.Anything, "USDT", "").Return(10000.0, nil)
	// 500 required, 190 usable after the 10 USDT buffer.
	v.On("Borrow", mock.Anything, "USDT", 310.0, "").Return(int64(42), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(after, nil)

	plan, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0.002, 5, 0)

	assert.NoError(t, err)
	assert.InDelta(t, 310.0, plan.BorrowedAmount, 1e-9)
	assert.False(t, plan.Adjusted)
	assert.InDelta(t, 0.002, plan.FinalQuantity, 1e-12)
	v.AssertExpectations(t)
}

func TestRequestLeveragedEntry_IsolatedModeScopesLoanToPair(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng, err := New(Params{
		Venue:  v,
		Source: s,
		Settings: Settings{
			MarginMode:           venue.MarginIsolated,
			BorrowSettleAttempts: 1,
			BorrowSettleDelay:    time.Millisecond,
		},
	})
	assert.NoError(t, err)

	snap := crossSnapshot(999, 0.02, 0, map[string]venue.AssetBalance{
		"USDT": {Asset: "USDT", Free: 200},
	})

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginIsolated, "BTC/USDT").Return(snap, nil)
	v.On("MaxBorrowable", mock.Anything, "USDT", "BTC/USDT").Return(10000.0, nil)
	v.On("Borrow", mock.Anything, "USDT", 310.0, "BTC/USDT").Return(int64(42), nil)

	plan, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0.002, 5, 0)

	assert.NoError(t, err)
	assert.InDelta(t, 310.0, plan.BorrowedAmount, 1e-9)
	v.AssertExpectations(t)
}

func TestRequestLeveragedEntry_ShrinksToBorrowCap(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newSizerEngine(t, v, s)

	// No debt yet: cap is 2x net collateral, 0.004 BTC = 200 USDT.
	snap := crossSnapshot(999, 0.002, 0, map[string]venue.AssetBalance{
		"USDT": {Asset: "USDT", Free: 110},
	})

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(snap, nil)
	v.On("MaxBorrowable", mock.Anything, "USDT", "").Return(10000.0, nil)
	v.On("Borrow", mock.Anything, "USDT", 200.0, "").Return(int64(7), nil)

	// Required 500, fundable 100 + 200: quantity shrinks by 0.6 and the step
	// filter truncates the rest.
	plan, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0.002, 5, 0)

	assert.NoError(t, err)
	assert.True(t, plan.Adjusted)
	assert.InDelta(t, 200.0, plan.BorrowedAmount, 1e-9)
	assert.InDelta(t, 0.001, plan.FinalQuantity, 1e-12)
	v.AssertExpectations(t)
}

func TestRequestLeveragedEntry_BlockedByMarginLevel(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newSizerEngine(t, v, s)

	// Existing debt and margin level 1.4: no new borrowing, and the funded
	// remainder is too small to clear the lot filter.
	snap := crossSnapshot(1.4, 0.002, 0.01, map[string]venue.AssetBalance{
		"USDT": {Asset: "USDT", Free: 110},
	})

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(snap, nil)

	_, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0.002, 5, 0)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "below instrument minimum")
	v.AssertNotCalled(t, "Borrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestLeveragedEntry_SellBorrowsBase(t *testing.T) {
	v := new(MockVenue)
	s := new(MockSource)
	eng := newSizerEngine(t, v, s)

	snap := crossSnapshot(999, 0.05, 0, map[string]venue.AssetBalance{
		"BTC": {Asset: "BTC", Free: 0.001},
	})

	s.On("CurrentPrice", mock.Anything, "BTC/USDT").Return(50000.0, nil)
	v.On("Instrument", mock.Anything, "BTC/USDT").Return(btcusdtMeta(), nil)
	v.On("FetchBalance", mock.Anything, venue.MarginCross, "BTC/USDT").Return(snap, nil)
	v.On("MaxBorrowable", mock.Anything, "BTC", "").Return(1.0, nil)
	v.On("Borrow", mock.Anything, "BTC", mock.AnythingOfType("float64"), "").Return(int64(9), nil)

	plan, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideSell, 0.002, 5, 0)

	assert.NoError(t, err)
	assert.Equal(t, "BTC", plan.BorrowAsset)
	assert.False(t, plan.Adjusted)
	assert.InDelta(t, 0.002, plan.FinalQuantity, 1e-12)
	assert.Greater(t, plan.BorrowedAmount, 0.009)
	v.AssertExpectations(t)
}

func TestRequestLeveragedEntry_RejectsBadInput(t *testing.T) {
	eng := newSizerEngine(t, new(MockVenue), new(MockSource))

	_, err := eng.RequestLeveragedEntry(context.Background(), "BTCUSDT", venue.SideBuy, 0, 5, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "desiredExposure", verr.Field)

	_, err = eng.RequestLeveragedEntry(context.Background(), "???", venue.SideBuy, 0.002, 5, 0)
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "symbol", verr.Field)
}
